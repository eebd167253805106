package chem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insilica/dockgate/internal/chem"
)

func TestValidateSMILESAccepts(t *testing.T) {
	t.Parallel()

	valid := []struct {
		name   string
		smiles string
	}{
		{"ethanol", "CCO"},
		{"benzene", "c1ccccc1"},
		{"aspirin", "CC(=O)Oc1ccccc1C(=O)O"},
		{"caffeine", "CN1C=NC2=C1C(=O)N(C(=O)N2C)C"},
		{"salt with components", "[Na+].[Cl-]"},
		{"cyclopropane", "C1CC1"},
		{"stereo bonds", "F/C=C/F"},
		{"two-digit ring closure", "C%10CCCCC%10"},
		{"isotope", "[13CH4]"},
		{"chirality", "N[C@@H](C)C(=O)O"},
	}

	for _, tc := range valid {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.NoError(t, chem.ValidateSMILES(tc.smiles))
		})
	}
}

func TestValidateSMILESRejects(t *testing.T) {
	t.Parallel()

	invalid := []struct {
		name   string
		smiles string
	}{
		{"unclosed ring", "C1CC"},
		{"unclosed branch", "C("},
		{"unmatched close", "C)"},
		{"empty branch", "C()"},
		{"trailing bond", "CC="},
		{"leading bond", "=CC"},
		{"doubled bond", "C==C"},
		{"unterminated bracket", "[CH4"},
		{"stray bracket close", "C]"},
		{"illegal characters", "not smiles"},
		{"trailing dot", "CCO."},
		{"unknown symbol", "C?O"},
		{"malformed two-digit ring", "%1C"},
	}

	for _, tc := range invalid {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := chem.ValidateSMILES(tc.smiles)
			require.Error(t, err)
			assert.ErrorIs(t, err, chem.ErrSMILESSyntax)
		})
	}
}

func TestValidateSMILESEmpty(t *testing.T) {
	t.Parallel()

	err := chem.ValidateSMILES("")
	require.Error(t, err)
	assert.ErrorIs(t, err, chem.ErrEmptySMILES)
}
