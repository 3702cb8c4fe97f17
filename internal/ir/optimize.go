// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"objeckvm/internal/bytecode"

	"github.com/sirupsen/logrus"
)

// Optimize runs the two-pass optimizer pipeline over p at the given
// level (0-3), per spec.md §4.1:
//
//	level 0: JumpCleanup, DeadStoreRemoval only (always-on passes)
//	level 1: + SetterGetterInline, IntFold, FloatFold
//	level 2: + StrengthReduction
//	level 3: + CopyPropagation, then a second pass running MethodInline
//
// Every stage is idempotent and pure over a method's block list, so
// passes within a level run in a fixed, not data-dependent, order.
func Optimize(p *bytecode.Program, level int, log *logrus.Logger) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	log.WithField("level", level).Debug("ir: starting pass 1")

	runOverProgram(p, JumpCleanup)
	runOverProgram(p, DeadStoreRemoval)
	log.Debug("ir: jump cleanup + dead store removal complete")

	if level >= 1 {
		runOverProgram(p, SetterGetterInline(p))
		runOverProgram(p, IntFold)
		runOverProgram(p, FloatFold)
		log.Debug("ir: setter/getter inline + constant folding complete")
	}

	if level >= 2 {
		runOverProgram(p, StrengthReduction)
		log.Debug("ir: strength reduction complete")
	}

	if level >= 3 {
		runOverProgram(p, CopyPropagation)
		log.Debug("ir: copy propagation complete")

		log.Debug("ir: starting pass 2 (method inlining)")
		MethodInline(p)
		log.Debug("ir: method inlining complete")
	}

	for _, cls := range p.Classes {
		for _, m := range cls.Methods {
			m.RebuildLabels()
		}
	}
}
