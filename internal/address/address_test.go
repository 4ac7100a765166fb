package address

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAddress(userID string) Address {
	return Address{
		UserID:  userID,
		Name:    "Asha Rao",
		Phone:   "9876543210",
		Line1:   "12 MG Road",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(a *Address)
		field  string
	}{
		{"ok", func(a *Address) {}, ""},
		{"missing name", func(a *Address) { a.Name = "" }, "name"},
		{"short phone", func(a *Address) { a.Phone = "98765" }, "phone"},
		{"landline prefix", func(a *Address) { a.Phone = "1234567890" }, "phone"},
		{"missing line1", func(a *Address) { a.Line1 = "" }, "line1"},
		{"missing city", func(a *Address) { a.City = "" }, "city"},
		{"unknown state", func(a *Address) { a.State = "Atlantis" }, "state"},
		{"pincode with leading zero", func(a *Address) { a.Pincode = "060001" }, "pincode"},
		{"pincode letters", func(a *Address) { a.Pincode = "56A001" }, "pincode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAddress("u1")
			tc.mutate(&a)
			err := a.Validate()
			if tc.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestMemoryBookDefaults(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBook()

	first, err := b.Add(ctx, validAddress("u1"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first address becomes default")

	second, err := b.Add(ctx, validAddress("u1"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	require.NoError(t, b.SetDefault(ctx, "u1", second.ID))
	list, err := b.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 1, countDefaults(list))

	third := validAddress("u1")
	third.IsDefault = true
	third, err = b.Add(ctx, third)
	require.NoError(t, err)
	list, _ = b.List(ctx, "u1")
	assert.Equal(t, 1, countDefaults(list))
	assert.Equal(t, third.ID, list[0].ID)

	require.NoError(t, b.Delete(ctx, "u1", third.ID))
	list, _ = b.List(ctx, "u1")
	require.Len(t, list, 2)
	assert.Equal(t, 1, countDefaults(list))
	assert.Equal(t, first.ID, list[0].ID)
}

func TestMemoryBookOwnership(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBook()
	a, err := b.Add(ctx, validAddress("u1"))
	require.NoError(t, err)

	_, err = b.Get(ctx, "u2", a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, b.SetDefault(ctx, "u2", a.ID), ErrNotFound)
	require.ErrorIs(t, b.Delete(ctx, "u2", a.ID), ErrNotFound)

	got, err := b.Get(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestMemoryBookRejectsInvalid(t *testing.T) {
	a := validAddress("u1")
	a.Pincode = "12"
	_, err := NewMemoryBook().Add(context.Background(), a)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func countDefaults(as []Address) int {
	n := 0
	for _, a := range as {
		if a.IsDefault {
			n++
		}
	}
	return n
}
