package reminders_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/reminders"
)

type sourceStub struct {
	patrons    []string
	totals     map[string]int64
	patronsErr error
	totalErr   error
}

func (s sourceStub) PatronsWithUnpaidFines(context.Context) ([]string, error) {
	return s.patrons, s.patronsErr
}

func (s sourceStub) TotalFine(_ context.Context, patronID string) (int64, error) {
	return s.totals[patronID], s.totalErr
}

func Test_Compose_OneNoticePerPatronWithFine(t *testing.T) {
	// arrange
	source := sourceStub{
		patrons: []string{"amy@example.com", "bob@example.com", "zoe@example.com"},
		totals:  map[string]int64{"amy@example.com": 60, "bob@example.com": 0, "zoe@example.com": 15},
	}

	// act
	notices, err := reminders.Compose(context.Background(), source,
		reminders.WithLibraryName("City Library"),
		reminders.WithSignature("The City Library team"),
	)

	// assert
	require.NoError(t, err)
	require.Len(t, notices, 2, "a patron who paid in the meantime gets no notice")
	assert.Equal(t, "amy@example.com", notices[0].PatronID)
	assert.Equal(t, int64(60), notices[0].TotalFine)
	assert.Equal(t, "City Library Fine Reminder", notices[0].Subject)
	assert.Contains(t, notices[0].Body, "unpaid library fines of 60")
	assert.Contains(t, notices[0].Body, "The City Library team")
	assert.Equal(t, "zoe@example.com", notices[1].PatronID)
}

func Test_Compose_Defaults(t *testing.T) {
	source := sourceStub{patrons: []string{"amy@example.com"}, totals: map[string]int64{"amy@example.com": 10}}

	notices, err := reminders.Compose(context.Background(), source)

	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "Library Fine Reminder", notices[0].Subject)
	assert.Contains(t, notices[0].Body, "Library Admin")
}

func Test_Compose_NoPatrons(t *testing.T) {
	notices, err := reminders.Compose(context.Background(), sourceStub{})

	assert.NoError(t, err)
	assert.Empty(t, notices)
}

func Test_Compose_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		source      sourceStub
		opts        []reminders.Option
		expectedErr error
	}{
		{
			name:        "listing patrons fails",
			source:      sourceStub{patronsErr: circulation.ErrStorage},
			expectedErr: circulation.ErrStorage,
		},
		{
			name:        "summing fines fails",
			source:      sourceStub{patrons: []string{"amy@example.com"}, totalErr: circulation.ErrStorage},
			expectedErr: circulation.ErrStorage,
		},
		{
			name:        "empty library name",
			opts:        []reminders.Option{reminders.WithLibraryName("")},
			expectedErr: reminders.ErrEmptyText,
		},
		{
			name:        "empty signature",
			opts:        []reminders.Option{reminders.WithSignature("")},
			expectedErr: reminders.ErrEmptyText,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reminders.Compose(context.Background(), tc.source, tc.opts...)

			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_WriteJSON(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	notices := []reminders.Notice{{PatronID: "amy@example.com", TotalFine: 60, Subject: "s", Body: "b"}}

	// act
	err := reminders.WriteJSON(&buf, notices)

	// assert
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "amy@example.com", decoded[0]["patron_id"])
	assert.EqualValues(t, 60, decoded[0]["total_fine"])
}

func Test_WriteJSON_NilIsAnEmptyArray(t *testing.T) {
	var buf bytes.Buffer

	err := reminders.WriteJSON(&buf, nil)

	assert.NoError(t, err)
	assert.JSONEq(t, "[]", buf.String())
}

func Test_WriteJSON_WriterError(t *testing.T) {
	err := reminders.WriteJSON(failingWriter{}, []reminders.Notice{{PatronID: "amy@example.com"}})

	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
