package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestCreditAndBalance(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "100.00", "", "top-up"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodAirtel, "25.50", "", "top-up"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	bal, err := ledger.Balance(ctx, "cl_1", MethodToken)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != "100.00" {
		t.Errorf("TOKEN balance = %s, want 100.00", bal)
	}

	total, err := ledger.Balance(ctx, "cl_1", "")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if total != "125.50" {
		t.Errorf("total balance = %s, want 125.50", total)
	}
}

func TestBalanceUnknownAccount(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	bal, err := ledger.Balance(ctx, "cl_nobody", MethodToken)
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if bal != "0.00" {
		t.Errorf("balance = %s, want 0.00", bal)
	}
}

func TestDebitInsufficient(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "50.00", "", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	err := ledger.Debit(ctx, "cl_1", KindClient, MethodToken, "60.00", "ord_1", "order")
	if err != ErrInsufficientBalance {
		t.Fatalf("Debit err = %v, want ErrInsufficientBalance", err)
	}

	// Failed debit must leave the balance untouched
	bal, _ := ledger.Balance(ctx, "cl_1", MethodToken)
	if bal != "50.00" {
		t.Errorf("balance after failed debit = %s, want 50.00", bal)
	}

	history, _ := ledger.History(ctx, "cl_1", 10)
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1 (credit only)", len(history))
	}
}

func TestDebitSignedEntry(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "100.00", "", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := ledger.Debit(ctx, "cl_1", KindClient, MethodToken, "28.00", "ord_1", ""); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	bal, _ := ledger.Balance(ctx, "cl_1", MethodToken)
	if bal != "72.00" {
		t.Errorf("balance = %s, want 72.00", bal)
	}

	history, _ := ledger.History(ctx, "cl_1", 10)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	// Newest first
	if history[0].Amount != "-28.00" {
		t.Errorf("debit entry amount = %s, want -28.00", history[0].Amount)
	}
	if history[0].Reference != "ord_1" {
		t.Errorf("debit entry reference = %s, want ord_1", history[0].Reference)
	}
}

func TestInvalidAmounts(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	for _, amount := range []string{"", "abc", "-5.00", "0.00", "1.2.3"} {
		if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, amount, "", ""); err != ErrInvalidAmount {
			t.Errorf("Credit(%q) err = %v, want ErrInvalidAmount", amount, err)
		}
		if err := ledger.Debit(ctx, "cl_1", KindClient, MethodToken, amount, "", ""); err != ErrInvalidAmount {
			t.Errorf("Debit(%q) err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestRefundDedupe(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "100.00", "", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := ledger.Debit(ctx, "cl_1", KindClient, MethodToken, "30.00", "sale_1", "sale"); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	if err := ledger.Refund(ctx, "cl_1", KindClient, MethodToken, "30.00", "sale_1", "return"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if err := ledger.Refund(ctx, "cl_1", KindClient, MethodToken, "30.00", "sale_1", "return"); err != ErrDuplicateRefund {
		t.Fatalf("second Refund err = %v, want ErrDuplicateRefund", err)
	}

	bal, _ := ledger.Balance(ctx, "cl_1", MethodToken)
	if bal != "100.00" {
		t.Errorf("balance = %s, want 100.00", bal)
	}
}

func TestTransferAtomicity(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "100.00", "", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	// Escrow release: client pays 100.00, business receives 90.00
	err := ledger.Transfer(ctx, TransferRequest{
		FromAccount:  "cl_1",
		FromKind:     KindClient,
		FromMethod:   MethodToken,
		DebitAmount:  "100.00",
		ToAccount:    "biz_1",
		ToKind:       KindBusiness,
		ToMethod:     MethodToken,
		CreditAmount: "90.00",
		Reference:    "fro_1",
		Description:  "escrow release",
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	clientBal, _ := ledger.Balance(ctx, "cl_1", MethodToken)
	bizBal, _ := ledger.Balance(ctx, "biz_1", MethodToken)
	if clientBal != "0.00" {
		t.Errorf("client balance = %s, want 0.00", clientBal)
	}
	if bizBal != "90.00" {
		t.Errorf("business balance = %s, want 90.00", bizBal)
	}
}

func TestTransferInsufficientLeavesNothing(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "10.00", "", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	err := ledger.Transfer(ctx, TransferRequest{
		FromAccount:  "cl_1",
		FromKind:     KindClient,
		FromMethod:   MethodToken,
		DebitAmount:  "50.00",
		ToAccount:    "biz_1",
		ToKind:       KindBusiness,
		ToMethod:     MethodToken,
		CreditAmount: "45.00",
		Reference:    "fro_1",
	})
	if err != ErrInsufficientBalance {
		t.Fatalf("Transfer err = %v, want ErrInsufficientBalance", err)
	}

	bizBal, _ := ledger.Balance(ctx, "biz_1", MethodToken)
	if bizBal != "0.00" {
		t.Errorf("business balance = %s, want 0.00 (no partial credit)", bizBal)
	}
}

func TestConcurrentDebitsConserveBalance(t *testing.T) {
	ctx := context.Background()
	ledger := New(NewMemoryStore())

	if err := ledger.Credit(ctx, "cl_1", KindClient, MethodToken, "10.00", "", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := ledger.Debit(ctx, "cl_1", KindClient, MethodToken, "1.00",
				fmt.Sprintf("ref_%d", n), ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("succeeded = %d, want exactly 10", succeeded)
	}
	bal, _ := ledger.Balance(ctx, "cl_1", MethodToken)
	if bal != "0.00" {
		t.Errorf("balance = %s, want 0.00", bal)
	}
}
