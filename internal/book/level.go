package book

import "container/list"

// PriceLevel is a FIFO queue of resting orders at one price. The queue is a
// doubly linked list so a resting order can be cancelled in O(1) given the
// list element handed back by insert.
type PriceLevel struct {
	Price  uint64
	orders *list.List
}

func newPriceLevel(price uint64) *PriceLevel {
	return &PriceLevel{Price: price, orders: list.New()}
}

func (pl *PriceLevel) empty() bool {
	return pl.orders.Len() == 0
}

// TotalQty sums the remaining quantity of every order resting at this level.
func (pl *PriceLevel) TotalQty() uint64 {
	var total uint64
	for e := pl.orders.Front(); e != nil; e = e.Next() {
		total += e.Value.(*Order).Qty
	}
	return total
}

func (pl *PriceLevel) front() *list.Element {
	return pl.orders.Front()
}

func (pl *PriceLevel) pushBack(o *Order) *list.Element {
	return pl.orders.PushBack(o)
}

func (pl *PriceLevel) remove(elem *list.Element) {
	pl.orders.Remove(elem)
}
