package segment

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func population(n int) []Customer {
	customers := make([]Customer, n)
	for i := range customers {
		customers[i] = ordersCustomer(fmt.Sprintf("c%d", i), float64(i%7))
	}
	return customers
}

func TestFilterReturnsEmptySlice(t *testing.T) {
	group := AllOf(&FactCondition{Field: "purchaseHistory", Property: "total_orders", Operator: OpGreaterThan, Value: 100.0})
	got := NewEvaluator(refNow).Filter(population(10), group)
	if got == nil || len(got) != 0 {
		t.Errorf("Filter() = %v, want empty non-nil slice", got)
	}
}

func TestSizeParallelMatchesSize(t *testing.T) {
	customers := population(5000)
	group := AllOf(&FactCondition{Field: "purchaseHistory", Property: "total_orders", Operator: OpGreaterThanOrEqual, Value: 3.0})
	ev := NewEvaluator(refNow)

	want := ev.Size(customers, group)
	for _, workers := range []int{0, 1, 4, 16} {
		got, err := ev.SizeParallel(context.Background(), customers, group, workers)
		if err != nil {
			t.Fatalf("SizeParallel(workers=%d) failed: %v", workers, err)
		}
		if got != want {
			t.Errorf("SizeParallel(workers=%d) = %d, want %d", workers, got, want)
		}
	}
}

func TestSizeParallelEmptyPopulation(t *testing.T) {
	n, err := NewEvaluator(refNow).SizeParallel(context.Background(), nil, MatchEveryone(), 4)
	if err != nil || n != 0 {
		t.Errorf("SizeParallel(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestSizeParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEvaluator(refNow).SizeParallel(ctx, population(2000), MatchEveryone(), 4)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("SizeParallel() error = %v, want context.Canceled", err)
	}
}
