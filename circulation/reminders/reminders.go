// Package reminders composes fine reminder notices for patrons with unpaid fines.
// Delivering the notices (e-mail or otherwise) is left to the caller.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	defaultLibraryName = "Library"
	defaultSignature   = "Library Admin"
	subjectSuffix      = "Fine Reminder"
)

// ErrEmptyText is returned by an option that is given an empty text.
var ErrEmptyText = errors.New("reminder text must not be empty")

// Source is the read side of the circulation workflow needed to compose reminders.
type Source interface {
	PatronsWithUnpaidFines(ctx context.Context) ([]circulation.PatronIDString, error)
	TotalFine(ctx context.Context, patronID circulation.PatronIDString) (int64, error)
}

// Notice is one reminder for one patron.
type Notice struct {
	PatronID  string `json:"patron_id"`
	TotalFine int64  `json:"total_fine"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type composer struct {
	libraryName string
	signature   string
}

// Option configures Compose.
type Option func(*composer) error

// WithLibraryName sets the library name used in the subject.
func WithLibraryName(name string) Option {
	return func(c *composer) error {
		if name == "" {
			return ErrEmptyText
		}

		c.libraryName = name

		return nil
	}
}

// WithSignature sets the closing line of the body.
func WithSignature(signature string) Option {
	return func(c *composer) error {
		if signature == "" {
			return ErrEmptyText
		}

		c.signature = signature

		return nil
	}
}

// Compose builds one notice per patron with unpaid fines, in the source's patron order.
// A patron whose fines were paid in the meantime gets no notice.
func Compose(ctx context.Context, source Source, opts ...Option) ([]Notice, error) {
	c := composer{libraryName: defaultLibraryName, signature: defaultSignature}

	for _, opt := range opts {
		if err := opt(&c); err != nil {
			return nil, err
		}
	}

	patrons, err := source.PatronsWithUnpaidFines(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing patrons with unpaid fines: %w", err)
	}

	notices := make([]Notice, 0, len(patrons))

	for _, patronID := range patrons {
		total, totalErr := source.TotalFine(ctx, patronID)
		if totalErr != nil {
			return nil, fmt.Errorf("summing fines of %s: %w", patronID, totalErr)
		}

		if total <= 0 {
			continue
		}

		notices = append(notices, c.notice(patronID, total))
	}

	return notices, nil
}

func (c composer) notice(patronID string, total int64) Notice {
	return Notice{
		PatronID:  patronID,
		TotalFine: total,
		Subject:   c.libraryName + " " + subjectSuffix,
		Body: fmt.Sprintf(
			"Dear patron,\n\n"+
				"You have unpaid library fines of %d in your account. "+
				"Please settle them as soon as possible to avoid borrowing restrictions.\n\n"+
				"Best regards,\n%s",
			total, c.signature,
		),
	}
}

// WriteJSON encodes the notices as an indented JSON array.
func WriteJSON(w io.Writer, notices []Notice) error {
	if notices == nil {
		notices = []Notice{}
	}

	encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(notices)
}
