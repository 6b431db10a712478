package client

import (
	"sort"
	"sync"
)

// CartLine — позиция корзины: напиток и количество.
type CartLine struct {
	DrinkID string
	Qty     int32
}

// Cart — корзина клиента до checkout. Хранит только количества:
// актуальные цены знает сервер, корзина их не кэширует.
type Cart struct {
	mu    sync.Mutex
	items map[string]int32
}

// NewCart создаёт пустую корзину.
func NewCart() *Cart {
	return &Cart{
		items: make(map[string]int32),
	}
}

// Add увеличивает количество напитка на delta. Неположительный остаток
// удаляет позицию.
func (c *Cart) Add(drinkID string, delta int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	qty := c.items[drinkID] + delta
	if qty <= 0 {
		delete(c.items, drinkID)
		return
	}
	c.items[drinkID] = qty
}

// SetQty выставляет точное количество напитка.
func (c *Cart) SetQty(drinkID string, qty int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if qty <= 0 {
		delete(c.items, drinkID)
		return
	}
	c.items[drinkID] = qty
}

// Remove уменьшает количество напитка на единицу; на нуле позиция
// удаляется. Для отсутствующей позиции — no-op.
func (c *Cart) Remove(drinkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	qty, ok := c.items[drinkID]
	if !ok {
		return
	}
	if qty <= 1 {
		delete(c.items, drinkID)
		return
	}
	c.items[drinkID] = qty - 1
}

// Clear опустошает корзину.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]int32)
}

// Empty сообщает, пуста ли корзина.
func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

// Total считает отображаемую сумму корзины по ценам из priceLookup.
// Сумма справочная: авторитетный total фиксирует сервер при checkout.
func (c *Cart) Total(priceLookup func(drinkID string) int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for drinkID, qty := range c.items {
		total += priceLookup(drinkID) * int64(qty)
	}
	return total
}

// Lines возвращает позиции корзины, отсортированные по id напитка.
func (c *Cart) Lines() []CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]CartLine, 0, len(c.items))
	for drinkID, qty := range c.items {
		lines = append(lines, CartLine{DrinkID: drinkID, Qty: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].DrinkID < lines[j].DrinkID
	})
	return lines
}
