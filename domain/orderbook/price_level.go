package orderbook

// PriceLevel is a FIFO queue of resting orders at one price. TotalQty tracks
// the sum of Remaining across the queue.
type PriceLevel struct {
	Price      int64
	TotalQty   int64
	OrderCount int

	head *Order
	tail *Order
}

func (p *PriceLevel) Head() *Order { return p.head }

func (p *PriceLevel) Empty() bool { return p.head == nil }

func (p *PriceLevel) enqueue(o *Order) {
	if p.head == nil {
		p.head = o
		p.tail = o
	} else {
		p.tail.next = o
		o.prev = p.tail
		p.tail = o
	}
	p.TotalQty += o.Remaining
	p.OrderCount++
}

func (p *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	p.TotalQty -= o.Remaining
	p.OrderCount--
}

// reduce lowers TotalQty after a partial fill of an order in this level.
func (p *PriceLevel) reduce(qty int64) {
	p.TotalQty -= qty
}
