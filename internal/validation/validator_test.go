package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,role"`
}

func TestStructAcceptsValidPayload(t *testing.T) {
	err := Struct(signup{Username: "maya_k", Email: "maya@example.com", Password: "secret1", Role: "creator"})
	assert.NoError(t, err)
}

func TestStructReportsEveryField(t *testing.T) {
	err := Struct(signup{Username: "ab", Email: "nope", Password: "123", Role: "owner"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Tag
	}
	assert.Equal(t, "min", fields["username"])
	assert.Equal(t, "email", fields["email"])
	assert.Equal(t, "min", fields["password"])
	assert.Equal(t, "role", fields["role"])
	assert.Contains(t, err.Error(), "password must be at least 6 characters")
}

func TestStructRequired(t *testing.T) {
	err := Struct(signup{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username is required")
	assert.Contains(t, err.Error(), "email is required")
}

func TestStructUsernameCharacters(t *testing.T) {
	err := Struct(signup{Username: "bad name", Email: "a@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username may only contain")
}
