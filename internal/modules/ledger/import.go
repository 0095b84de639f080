package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/utils"
)

// parsedRow is an import row after date and type validation
type parsedRow struct {
	event TradeEvent
	row   int
}

func parseImportRow(portfolioID int64, in ImportRow) (parsedRow, error) {
	date, err := utils.ParseDate(in.Date)
	if err != nil {
		return parsedRow{}, fmt.Errorf("row %d: %w: %q", in.Row, domain.ErrInvalidDateParse, in.Date)
	}
	typ, err := domain.ParseTradeType(in.Type)
	if err != nil {
		return parsedRow{}, fmt.Errorf("row %d: %w", in.Row, err)
	}
	return parsedRow{
		row: in.Row,
		event: TradeEvent{
			Date:        date,
			Symbol:      in.Symbol,
			Exchange:    in.Exchange,
			Type:        typ,
			PortfolioID: portfolioID,
			Price:       in.Price,
			Quantity:    in.Quantity,
			Commission:  in.Commission,
		},
	}, nil
}

// ImportBatch applies imported rows in order and reports the outcome of each.
// Cash Deposit rows are recorded as deposits of price×quantity.
//
// BestEffort commits each valid row on its own; a bad row is reported and
// the rest continue. Atomic stops at the first failure and rolls back every
// row; valid rows are then reported with ErrBatchRolledBack. The returned
// error is non-nil only when an Atomic batch was rolled back.
func (s *Service) ImportBatch(ctx context.Context, portfolioID int64, rows []ImportRow, policy ImportPolicy) ([]RowResult, error) {
	defer utils.OperationTimer("import_batch", s.log)()

	results := make([]RowResult, len(rows))
	parsed := make([]parsedRow, len(rows))
	var firstErr error

	for i, in := range rows {
		results[i].Row = in.Row
		p, err := parseImportRow(portfolioID, in)
		if err != nil {
			results[i].Err = err
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		parsed[i] = p
	}

	if policy == Atomic {
		return s.importAtomic(ctx, portfolioID, parsed, results, firstErr)
	}

	for i := range parsed {
		if results[i].Err != nil {
			continue
		}
		id, err := s.importOne(ctx, parsed[i].event)
		results[i].Err = err
		results[i].Transaction = id
	}

	return finishResults(results), nil
}

func (s *Service) importOne(ctx context.Context, event TradeEvent) (int64, error) {
	if event.Type == domain.TradeCashDeposit {
		d, err := s.RecordDeposit(ctx, event.PortfolioID, event.Price*event.Quantity, event.Date)
		if err != nil {
			return 0, err
		}
		return d.ID, nil
	}
	txn, err := s.Apply(ctx, event)
	if err != nil {
		return 0, err
	}
	return txn.ID, nil
}

func (s *Service) importAtomic(ctx context.Context, portfolioID int64, parsed []parsedRow, results []RowResult, parseErr error) ([]RowResult, error) {
	if parseErr != nil {
		markRolledBack(results)
		return finishResults(results), fmt.Errorf("%w: %v", ErrBatchRolledBack, parseErr)
	}

	var touched []*Holding
	err := s.inTx(ctx, portfolioID, func(r txRepos) error {
		for i, p := range parsed {
			if p.event.Type == domain.TradeCashDeposit {
				amount := p.event.Price * p.event.Quantity
				if amount <= 0 {
					results[i].Err = fmt.Errorf("%w: deposit amount %g", domain.ErrInvalidAmount, amount)
					return results[i].Err
				}
				d, err := recordDepositTx(ctx, r, portfolioID, amount, p.event.Date)
				if err != nil {
					results[i].Err = err
					return err
				}
				results[i].Transaction = d.ID
				continue
			}

			txn, h, err := s.applyTx(ctx, r, p.event)
			if err != nil {
				results[i].Err = err
				return err
			}
			results[i].Transaction = txn.ID
			touched = append(touched, h)
		}
		return nil
	})
	if err != nil {
		markRolledBack(results)
		return finishResults(results), fmt.Errorf("%w: %v", ErrBatchRolledBack, err)
	}

	s.log.Info().Int64("portfolio_id", portfolioID).Int("rows", len(parsed)).Msg("Imported batch")
	for _, h := range touched {
		s.enrichMetadata(ctx, h)
	}
	return finishResults(results), nil
}

// markRolledBack flags rows that did not fail themselves and clears their ids
func markRolledBack(results []RowResult) {
	for i := range results {
		if results[i].Err == nil {
			results[i].Err = ErrBatchRolledBack
		}
		results[i].Transaction = 0
	}
}

func finishResults(results []RowResult) []RowResult {
	for i := range results {
		results[i].OK = results[i].Err == nil
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
		}
	}
	return results
}

// ImportSummary counts successful and failed rows
func ImportSummary(results []RowResult) (ok, failed int) {
	for _, r := range results {
		if r.OK {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// IsRolledBack reports whether a row was discarded only because of another row
func IsRolledBack(r RowResult) bool {
	return errors.Is(r.Err, ErrBatchRolledBack)
}
