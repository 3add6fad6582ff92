/*
scenarios.go - Sample data for demos and manual testing

PURPOSE:
  Populates the store with fake clients, each with one loan, so the
  dashboard and the outstanding view have something to show.

WHAT GETS CREATED:
  For each client (gofakeit names, 8-digit DNI, half of them with email):
  1. One loan: principal from a fixed set, 12 installments (or the largest
     allowed count below that), started 2 to 6 months back
  2. Every installment due before today is paid on its due date,
     except that every third client leaves the latest one unpaid

  The result is a mix of paid rows, arrears, rows due this week and
  rows later in the month.

USAGE VIA API:
  POST /api/scenarios/sample
  {"clients": 20, "seed": 42}

USAGE VIA CLI:
  lending-engine seed --clients 20 --seed 42

NOTE:
  Sample data is added to whatever is already stored. Only use in
  development/demo environments.

SEE ALSO:
  - handlers.go: LoadSample handler
  - cmd/server/main.go: seed command
*/
package api

import (
	"context"
	"errors"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// SAMPLE DEFINITIONS
// =============================================================================

const defaultSampleClients = 10

var samplePrincipals = []int64{500, 1000, 1500, 2000, 3000, 5000, 8000}

type SampleOptions struct {
	Clients int   // default 10
	Seed    int64 // 0 picks a random seed
}

type SampleResult struct {
	Clients  int
	Loans    int
	Payments int
}

// LoadSampleData creates fake clients, loans and payments through the service.
func LoadSampleData(ctx context.Context, svc *backoffice.Service, opts SampleOptions) (SampleResult, error) {
	if opts.Clients <= 0 {
		opts.Clients = defaultSampleClients
	}
	faker := gofakeit.New(opts.Seed)
	today := svc.Today()
	count := sampleInstallmentCount(svc.Product().InstallmentCounts)
	methods := lending.DefaultPaymentMethods()

	var res SampleResult
	for i := 0; i < opts.Clients; i++ {
		in := backoffice.ClientInput{
			DNI:       faker.Numerify("########"),
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
			Address:   faker.Street(),
			Phone:     faker.Numerify("9########"),
		}
		if faker.Bool() {
			in.Email = faker.Email()
		}

		client, err := svc.RegisterClient(ctx, in)
		if errors.Is(err, lending.ErrDuplicateClient) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Clients++

		start := today.AddMonths(-faker.Number(2, 6)).AddDays(-faker.Number(0, 20))
		detail, err := svc.RegisterLoan(ctx, backoffice.LoanInput{
			ClientID:         client.ID,
			Principal:        lending.MoneyFromInt(samplePrincipals[faker.Number(0, len(samplePrincipals)-1)]),
			InstallmentCount: count,
			StartDate:        start,
		})
		if err != nil {
			return res, err
		}
		res.Loans++

		var due []lending.Installment
		for _, inst := range detail.Installments {
			if inst.DueDate.Before(today) {
				due = append(due, inst)
			}
		}
		if i%3 == 0 && len(due) > 0 {
			due = due[:len(due)-1]
		}

		for _, inst := range due {
			method := methods[faker.Number(0, len(methods)-1)]
			if _, err := svc.AsOf(inst.DueDate).RecordPayment(ctx, backoffice.PaymentInput{
				InstallmentID: inst.ID,
				MethodID:      method.ID,
				Notes:         "sample data",
			}); err != nil {
				return res, err
			}
			res.Payments++
		}
	}
	return res, nil
}

// sampleInstallmentCount prefers 12, else the largest allowed count below it,
// else the smallest allowed.
func sampleInstallmentCount(allowed []int) int {
	best := 0
	for _, c := range allowed {
		if c == 12 {
			return 12
		}
		if c < 12 && c > best {
			best = c
		}
	}
	if best > 0 {
		return best
	}
	smallest := 0
	for _, c := range allowed {
		if smallest == 0 || c < smallest {
			smallest = c
		}
	}
	return smallest
}
