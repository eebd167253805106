// Package chem provides syntactic validation for SMILES ligand
// descriptors. The check is purely lexical: it accepts strings that
// follow the SMILES grammar for atoms, bonds, branches and ring
// closures, and rejects anything else before a job is created. Chemical
// plausibility is left to the inference engine, which performs its own
// parsing and reports a fatal error for descriptors it cannot read.
package chem

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation errors returned by ValidateSMILES.
var (
	ErrEmptySMILES  = errors.New("SMILES string cannot be empty")
	ErrSMILESSyntax = errors.New("malformed SMILES string")
)

// Two-letter atom symbols of the SMILES organic subset.
var organicTwoLetter = map[string]bool{
	"Cl": true,
	"Br": true,
}

// Single-letter atoms writable outside brackets, including the aromatic
// lowercase forms and the wildcard.
const organicOneLetter = "BCNOPSFIbcnops*"

// bracketAtom matches the interior of a bracket atom expression:
// optional isotope, element symbol (or wildcard), chirality, hydrogen
// count, charge and atom class.
var bracketAtom = regexp.MustCompile(
	`^\d{0,3}([A-Z][a-z]?|[bcnops]|\*)(@{1,2}|@(TH|AL|SP|TB|OH)\d{1,2})?(H\d*)?(\+{1,3}|-{1,3}|[+-]\d{1,2})?(:\d+)?$`,
)

// ValidateSMILES checks that s is a syntactically well-formed SMILES
// descriptor. It returns ErrEmptySMILES for the empty string and an
// error wrapping ErrSMILESSyntax describing the first problem found
// otherwise. A nil return means the string is lexically acceptable.
func ValidateSMILES(s string) error {
	if s == "" {
		return ErrEmptySMILES
	}
	if strings.Contains(s, "()") {
		return fmt.Errorf("%w: empty branch", ErrSMILESSyntax)
	}

	var (
		depth     int
		openRings = map[string]bool{}
		sawAtom   bool
		pendBond  bool
	)

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return fmt.Errorf("%w: unterminated bracket atom at position %d", ErrSMILESSyntax, i)
			}
			inner := s[i+1 : i+end]
			if !bracketAtom.MatchString(inner) {
				return fmt.Errorf("%w: invalid bracket atom %q", ErrSMILESSyntax, "["+inner+"]")
			}
			sawAtom = true
			pendBond = false
			i += end + 1

		case c == ']':
			return fmt.Errorf("%w: unmatched ']' at position %d", ErrSMILESSyntax, i)

		case c == '(':
			if !sawAtom {
				return fmt.Errorf("%w: branch before any atom", ErrSMILESSyntax)
			}
			if pendBond {
				return fmt.Errorf("%w: bond before '(' at position %d", ErrSMILESSyntax, i)
			}
			depth++
			i++

		case c == ')':
			if depth == 0 {
				return fmt.Errorf("%w: unmatched ')' at position %d", ErrSMILESSyntax, i)
			}
			if pendBond {
				return fmt.Errorf("%w: dangling bond before ')' at position %d", ErrSMILESSyntax, i)
			}
			depth--
			i++

		case c == '-' || c == '=' || c == '#' || c == '$' || c == ':' || c == '/' || c == '\\':
			if !sawAtom {
				return fmt.Errorf("%w: bond before any atom", ErrSMILESSyntax)
			}
			if pendBond {
				return fmt.Errorf("%w: consecutive bond symbols at position %d", ErrSMILESSyntax, i)
			}
			pendBond = true
			i++

		case c == '.':
			if !sawAtom || pendBond {
				return fmt.Errorf("%w: misplaced '.' at position %d", ErrSMILESSyntax, i)
			}
			if depth != 0 {
				return fmt.Errorf("%w: '.' inside branch at position %d", ErrSMILESSyntax, i)
			}
			i++

		case c >= '0' && c <= '9':
			if !sawAtom {
				return fmt.Errorf("%w: ring closure before any atom", ErrSMILESSyntax)
			}
			key := string(c)
			openRings[key] = !openRings[key]
			pendBond = false
			i++

		case c == '%':
			if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
				return fmt.Errorf("%w: '%%' requires two digits at position %d", ErrSMILESSyntax, i)
			}
			key := s[i+1 : i+3]
			openRings[key] = !openRings[key]
			pendBond = false
			i += 3

		default:
			// Organic-subset atom: try the two-letter symbols first.
			if i+1 < len(s) && organicTwoLetter[s[i:i+2]] {
				sawAtom = true
				pendBond = false
				i += 2
				continue
			}
			if strings.IndexByte(organicOneLetter, c) >= 0 {
				sawAtom = true
				pendBond = false
				i++
				continue
			}
			return fmt.Errorf("%w: unexpected character %q at position %d", ErrSMILESSyntax, string(c), i)
		}
	}

	if depth != 0 {
		return fmt.Errorf("%w: %d unclosed branch(es)", ErrSMILESSyntax, depth)
	}
	if pendBond {
		return fmt.Errorf("%w: trailing bond symbol", ErrSMILESSyntax)
	}
	if strings.HasSuffix(s, ".") {
		return fmt.Errorf("%w: trailing '.'", ErrSMILESSyntax)
	}
	for ring, open := range openRings {
		if open {
			return fmt.Errorf("%w: unclosed ring bond %s", ErrSMILESSyntax, ring)
		}
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
