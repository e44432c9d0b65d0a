package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_Empty(t *testing.T) {
	assert.Nil(t, Text(""))
	assert.Nil(t, Text("   \t\n"))
}

func TestText_TrimLower(t *testing.T) {
	got := Text("  ACME Roofing  ")
	require.NotNil(t, got)
	assert.Equal(t, "acme roofing", *got)
}

func TestText_CollapsesSpaces(t *testing.T) {
	assert.Equal(t, "12 main st", TextValue("12   Main  St"))
}

func TestText_NFC(t *testing.T) {
	// "e" followed by a combining acute accent composes to a single rune.
	assert.Equal(t, "caf\u00e9", TextValue("Cafe\u0301"))
}

func TestTextValue_Blank(t *testing.T) {
	assert.Equal(t, "", TextValue("  "))
}

func TestFloat(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"$1,234.56", ptr(1234.56)},
		{"1.234,56", ptr(1234.56)},
		{"1234", ptr(1234.0)},
		{"12,5", ptr(12.5)},
		{"1,234,567", ptr(1234567.0)},
		{"USD 500", ptr(500.0)},
		{"750 dollars", ptr(750.0)},
		{"-42.5", ptr(-42.5)},
		{"EUR 1.000,50", ptr(1000.50)},
		{"", nil},
		{"   ", nil},
		{"n/a", nil},
		{"-", nil},
		{"1-2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Float(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestParseDate_Formats(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2021-03-04", "2021-03-04 00:00:00"},
		{"2021-03-04 10:11:12", "2021-03-04 10:11:12"},
		{"03/04/2021", "2021-03-04 00:00:00"},
		{"2019-06-21T10:51:47Z", "2019-06-21 10:51:47"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseDate_Blank(t *testing.T) {
	got, err := ParseDate("  ")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseDate_Garbage(t *testing.T) {
	got, err := ParseDate("not a date at all")
	assert.ErrorIs(t, err, ErrUnparseableDate)
	assert.Nil(t, got)
}

func TestSplitStreet(t *testing.T) {
	num, name := SplitStreet("12 Main St")
	require.NotNil(t, num)
	require.NotNil(t, name)
	assert.Equal(t, "12", *num)
	assert.Equal(t, "main st", *name)
}

func TestSplitStreet_NumberOnly(t *testing.T) {
	num, name := SplitStreet("12")
	require.NotNil(t, num)
	assert.Equal(t, "12", *num)
	assert.Nil(t, name)
}

func TestSplitStreet_Empty(t *testing.T) {
	num, name := SplitStreet("")
	assert.Nil(t, num)
	assert.Nil(t, name)
}

func TestReverseName(t *testing.T) {
	assert.Equal(t, "John Smith", ReverseName("Smith, John"))
	assert.Equal(t, "Smith", ReverseName("Smith"))
	assert.Equal(t, "John Smith", ReverseName("Smith,  John ,"))
	assert.Equal(t, "", ReverseName(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
	assert.Equal(t, "héé", Truncate("héééé", 3))
	assert.Nil(t, TruncatePtr(nil, 3))
	assert.Equal(t, "ab", *TruncatePtr(ptr("abc"), 2))
}

func TestPermitStatus(t *testing.T) {
	assert.Equal(t, StatusOngoing, *PermitStatus("Open"))
	assert.Equal(t, StatusOngoing, *PermitStatus("Issued"))
	assert.Equal(t, StatusCompleted, *PermitStatus("Closed"))
	assert.Equal(t, StatusCancelled, *PermitStatus("Canceled"))
	assert.Equal(t, StatusCancelled, *PermitStatus("STOP WORK"))
	assert.Equal(t, "pending review", *PermitStatus("Pending Review"))
	assert.Nil(t, PermitStatus(""))
}

func ptr[T any](v T) *T { return &v }
