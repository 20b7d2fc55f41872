package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNamespace(t *testing.T) {
	for _, ns := range Namespaces() {
		got, err := ParseNamespace(string(ns))
		require.NoError(t, err)
		assert.Equal(t, ns, got)
	}

	got, err := ParseNamespace(" paper ")
	require.NoError(t, err)
	assert.Equal(t, NamespacePaper, got)

	_, err = ParseNamespace("papers")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "namespace", ve.Field)
}

func TestRecordValidate(t *testing.T) {
	ok := Record{ID: "p1", Text: "graph networks", Title: "GNN", Namespace: NamespacePaper}
	require.NoError(t, ok.Validate())

	cases := map[string]Record{
		"id":        {Text: "x", Namespace: NamespacePaper},
		"text":      {ID: "p1", Text: "   ", Namespace: NamespacePaper},
		"namespace": {ID: "p1", Text: "x", Namespace: "video"},
	}
	for field, rec := range cases {
		t.Run(field, func(t *testing.T) {
			err := rec.Validate()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	su := fmt.Errorf("retrieve: %w", &StoreUnavailableError{Op: "search", Err: cause})
	assert.ErrorIs(t, su, ErrStoreUnavailable)
	assert.ErrorIs(t, su, cause)
	assert.NotErrorIs(t, su, ErrProvisioning)

	pe := &ProvisioningError{Index: "anu", Err: ErrIndexExists}
	assert.ErrorIs(t, pe, ErrProvisioning)
	assert.ErrorIs(t, pe, ErrIndexExists)

	nf := &NotFoundError{Index: "anu"}
	assert.ErrorIs(t, nf, ErrIndexNotFound)
	assert.Contains(t, nf.Error(), "anu")
}
