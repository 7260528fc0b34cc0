package metrics

// Observer is consumed by the simulation engine and both queue consumer
// loops. The prometheus implementation is the only real one; tests use Nop.
type Observer interface {
	DayAdvanced(day int)
	JobPublished(tag string)
	JobAcked(tag string)
	JobDeferred(tag string)
	PaymentReplayed()
	PaymentDroppedStale()
	ObserveBalance(balance int64)
}

type NopObserver struct{}

func (NopObserver) DayAdvanced(int)      {}
func (NopObserver) JobPublished(string)  {}
func (NopObserver) JobAcked(string)      {}
func (NopObserver) JobDeferred(string)   {}
func (NopObserver) PaymentReplayed()     {}
func (NopObserver) PaymentDroppedStale() {}
func (NopObserver) ObserveBalance(int64) {}
