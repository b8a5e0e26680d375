package mailstats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/reportsync/internal/domain"
	"github.com/ignite/reportsync/internal/pkg/logger"
)

// BackfillResult summarizes one tenant backfill run.
type BackfillResult struct {
	TenantName     string `json:"tenant_name"`
	MonthsFetched  int    `json:"months_fetched"`
	MonthsSkipped  int    `json:"months_skipped"`
	MonthsFailed   int    `json:"months_failed"`
	ReportsCreated int    `json:"reports_created"`
	ReportsSkipped int    `json:"reports_skipped"`
}

// BackfillTenant fetches historical report data for [from, to) one calendar
// month at a time. Months already marked in the ledger are skipped, so a
// crashed or interrupted backfill resumes where it left off. A month is
// marked only after every one of its pages persisted; a month with any
// failed page is left unmarked and retried on the next run. pageLimit
// overrides the configured page size when positive.
func (s *Syncer) BackfillTenant(ctx context.Context, tenant domain.Tenant, from, to time.Time, pageLimit int) (*BackfillResult, error) {
	if pageLimit <= 0 {
		pageLimit = s.pageLimit
	}
	client := s.newClient(tenant)
	result := &BackfillResult{TenantName: tenant.Name}

	done, err := s.months.ListYearMonths(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("list fetched months for %s: %w", tenant.Name, err)
	}

	for _, month := range monthsBetween(from, to) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		ym := month.Format("2006-01")
		if _, ok := done[ym]; ok {
			result.MonthsSkipped++
			continue
		}

		monthEnd := month.AddDate(0, 1, 0)
		if monthEnd.After(to) {
			monthEnd = to
		}
		created, skipped, err := s.backfillMonth(ctx, client, tenant, month, monthEnd, pageLimit)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			// Leave the month unmarked so the next run retries it.
			logger.Error("backfill month failed",
				"tenant", tenant.Name, "month", ym, "error", err.Error())
			result.MonthsFailed++
			continue
		}
		result.ReportsCreated += created
		result.ReportsSkipped += skipped

		if err := s.months.MarkFetched(ctx, domain.FetchedMonth{
			TenantID:  tenant.ID,
			YearMonth: ym,
			FromDate:  month,
			ToDate:    monthEnd,
		}); err != nil {
			return result, fmt.Errorf("mark month %s fetched for %s: %w", ym, tenant.Name, err)
		}
		result.MonthsFetched++
		logger.Info("backfill month done",
			"tenant", tenant.Name, "month", ym, "created", created, "skipped", skipped)

		if s.monthPause > 0 {
			select {
			case <-time.After(s.monthPause):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, nil
}

// backfillMonth fetches all report pages for one month window. The first
// page establishes the page count; the rest are fetched by a bounded worker
// pool, and each page persists independently as it arrives.
func (s *Syncer) backfillMonth(ctx context.Context, client Reporter, tenant domain.Tenant, from, to time.Time, limit int) (int, int, error) {
	first, total, err := s.fetchPageWithRetry(ctx, client, 1, limit, &from, &to)
	if err != nil {
		return 0, 0, fmt.Errorf("first page: %w", err)
	}
	created, skipped, err := s.persistReportPage(ctx, tenant.ID, first)
	if err != nil {
		return created, skipped, err
	}
	if total <= limit {
		return created, skipped, nil
	}

	totalPages := (total + limit - 1) / limit
	pages := make(chan int)
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	workers := s.pageConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pages {
				rows, _, err := s.fetchPageWithRetry(ctx, client, page, limit, &from, &to)
				if err == nil {
					var c, k int
					c, k, err = s.persistReportPage(ctx, tenant.ID, rows)
					mu.Lock()
					created += c
					skipped += k
					mu.Unlock()
				}
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("page %d: %w", page, err)
					}
					mu.Unlock()
				}
			}
		}()
	}

	for page := 2; page <= totalPages; page++ {
		select {
		case pages <- page:
		case <-ctx.Done():
			close(pages)
			wg.Wait()
			return created, skipped, ctx.Err()
		}
	}
	close(pages)
	wg.Wait()

	if firstErr != nil {
		return created, skipped, firstErr
	}
	return created, skipped, nil
}

// monthsBetween returns the first day (UTC midnight) of every calendar month
// touching [from, to).
func monthsBetween(from, to time.Time) []time.Time {
	var months []time.Time
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for cur.Before(to) {
		months = append(months, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}
