// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decl

import (
	"github.com/AleutianAI/cppgen/services/cppgen/diag"
)

// Validate checks one declaration for structural consistency.
//
// Description:
//
//	An interface must declare every instrumentable method pure virtual, and
//	a class must not declare any pure virtual method. Special members
//	(constructors, destructor, operator=) are exempt from both rules, which
//	is how an interface may still carry a user-declared destructor.
//
// Outputs:
//
//	error - A *diag.Error of KindMalformedDeclaration, or nil.
func Validate(d *Declaration) error {
	if d == nil {
		return diag.Errorf(diag.KindMalformedDeclaration, "", "nil declaration")
	}
	if d.Name == "" {
		return diag.Errorf(diag.KindMalformedDeclaration, "", "declaration has no name")
	}
	if !d.FullyDefined && (len(d.Methods) > 0 || len(d.Fields) > 0) {
		return diag.Errorf(diag.KindMalformedDeclaration, d.Name,
			"forward-only declaration carries %d methods and %d fields", len(d.Methods), len(d.Fields))
	}

	for _, m := range d.Methods {
		if m == nil || m.Name == "" {
			return diag.Errorf(diag.KindMalformedDeclaration, d.Name, "method without a name")
		}
		if !m.Instrumentable() {
			continue
		}
		switch {
		case m.PureVirtual && !d.IsInterface():
			return diag.Errorf(diag.KindMalformedDeclaration, d.Name,
				"pure virtual method %s in a declaration tagged %s", m.Signature(), d.Kind)
		case !m.PureVirtual && d.IsInterface():
			return diag.Errorf(diag.KindMalformedDeclaration, d.Name,
				"interface method %s is not pure virtual", m.Signature())
		}
	}

	for _, f := range d.Fields {
		if f == nil || f.Name == "" {
			return diag.Errorf(diag.KindMalformedDeclaration, d.Name, "field without a name")
		}
	}
	return nil
}

// ValidateUnit validates every declaration and function in u and stops at
// the first malformed record.
func ValidateUnit(u *Unit) error {
	if u == nil {
		return diag.Errorf(diag.KindMalformedDeclaration, "", "nil unit")
	}
	for _, d := range u.Declarations {
		if err := Validate(d); err != nil {
			return err
		}
	}
	for _, fn := range u.Functions {
		if fn == nil || fn.Name == "" {
			return diag.Errorf(diag.KindMalformedDeclaration, u.Name, "function body without a name")
		}
	}
	return nil
}
