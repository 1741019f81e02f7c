package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	IDs        []string `json:"proposalIds" validate:"required,min=1,dive,required"`
	Confidence *int     `json:"confidence" validate:"omitempty,min=0,max=100"`
}

func TestValidateReportsFields(t *testing.T) {
	v := New()
	err := v.Validate(context.Background(), sample{})
	require.ErrorIs(t, err, ErrValidation)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "proposalIds", verr.Fields[0].Field)
	assert.Equal(t, "required", verr.Fields[0].Rule)
}

func TestValidateRules(t *testing.T) {
	v := New()
	high := 120
	ok := 90
	cases := []struct {
		name    string
		msg     any
		wantErr bool
	}{
		{"empty list", sample{IDs: []string{}}, true},
		{"blank id", sample{IDs: []string{"a", ""}}, true},
		{"confidence too high", sample{IDs: []string{"a"}, Confidence: &high}, true},
		{"valid", &sample{IDs: []string{"a"}, Confidence: &ok}, false},
		{"non struct", "text", false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(context.Background(), tc.msg)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInvalid(t *testing.T) {
	err := Invalid("from", "date")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation failed: from: date", err.Error())
}
