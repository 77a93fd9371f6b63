package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chart of accounts used by the synchronized postings.
const (
	AccountCash         = "1000-cash"
	AccountInventory    = "1200-inventory"
	AccountPayable      = "2000-accounts-payable"
	AccountSalesRevenue = "4000-sales-revenue"
	AccountSalesReturns = "4100-sales-returns"
)

var (
	ErrUnbalanced  = errors.New("journal entry is not balanced")
	ErrEmptyEntry  = errors.New("journal entry has no lines")
	ErrInvalidLine = errors.New("invalid journal line")
)

// entryNamespace seeds deterministic entry ids.
var entryNamespace = uuid.MustParse("6f1c3a52-3d0e-4b7e-9a55-2f4f0c1b8e11")

// Line is one side of a posting. Exactly one of Debit and Credit is set.
type Line struct {
	Account string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

func Debit(account string, amount decimal.Decimal) Line {
	return Line{Account: account, Debit: amount, Credit: decimal.Zero}
}

func Credit(account string, amount decimal.Decimal) Line {
	return Line{Account: account, Debit: decimal.Zero, Credit: amount}
}

// Entry is a balanced journal entry derived from one source event.
type Entry struct {
	id            uuid.UUID
	tenantID      uuid.UUID
	sourceKey     string
	sourceEventID string
	lines         []Line
	postedAt      time.Time
}

// EntryID derives the entry id from its source so that re-processing the
// same source event yields the same entry.
func EntryID(tenantID uuid.UUID, sourceKey string) uuid.UUID {
	return uuid.NewSHA1(entryNamespace, []byte(tenantID.String()+"/"+sourceKey))
}

// NewEntry validates lines and builds an entry.
func NewEntry(tenantID uuid.UUID, sourceKey, sourceEventID string, lines ...Line) (*Entry, error) {
	if sourceKey == "" {
		return nil, errors.New("journal entry requires a source key")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyEntry
	}

	debit, credit := decimal.Zero, decimal.Zero
	for i, l := range lines {
		if l.Account == "" {
			return nil, fmt.Errorf("%w: line %d has no account", ErrInvalidLine, i)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has a negative amount", ErrInvalidLine, i)
		}
		if l.Debit.IsZero() == l.Credit.IsZero() {
			return nil, fmt.Errorf("%w: line %d must be either a debit or a credit", ErrInvalidLine, i)
		}
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !debit.Equal(credit) {
		return nil, fmt.Errorf("%w: debit %s, credit %s", ErrUnbalanced, debit, credit)
	}

	return &Entry{
		id:            EntryID(tenantID, sourceKey),
		tenantID:      tenantID,
		sourceKey:     sourceKey,
		sourceEventID: sourceEventID,
		lines:         append([]Line(nil), lines...),
		postedAt:      time.Now().UTC(),
	}, nil
}

// Restore rebuilds a stored entry without validating it again.
func Restore(id, tenantID uuid.UUID, sourceKey, sourceEventID string, lines []Line, postedAt time.Time) *Entry {
	return &Entry{
		id:            id,
		tenantID:      tenantID,
		sourceKey:     sourceKey,
		sourceEventID: sourceEventID,
		lines:         append([]Line(nil), lines...),
		postedAt:      postedAt,
	}
}

func (e *Entry) ID() uuid.UUID {
	return e.id
}

func (e *Entry) TenantID() uuid.UUID {
	return e.tenantID
}

func (e *Entry) SourceKey() string {
	return e.sourceKey
}

func (e *Entry) SourceEventID() string {
	return e.sourceEventID
}

func (e *Entry) Lines() []Line {
	return append([]Line(nil), e.lines...)
}

func (e *Entry) PostedAt() time.Time {
	return e.postedAt
}

// Total is the debit side of the entry, equal to the credit side.
func (e *Entry) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.lines {
		total = total.Add(l.Debit)
	}
	return total
}
