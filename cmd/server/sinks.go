package main

import (
	"errors"

	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/kernel/model"
)

// The world takes one sink per kind; these fan a write out to the JSONL
// stream and the index. Nil members are skipped.

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var errs []error
	for _, l := range m {
		if l != nil {
			errs = append(errs, l.WriteTick(entry))
		}
	}
	return errors.Join(errs...)
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var errs []error
	for _, l := range m {
		if l != nil {
			errs = append(errs, l.WriteAudit(entry))
		}
	}
	return errors.Join(errs...)
}

type multiReporter []world.AccidentReporter

func (m multiReporter) ReportAccident(rec model.AccidentRecord) error {
	var errs []error
	for _, r := range m {
		if r != nil {
			errs = append(errs, r.ReportAccident(rec))
		}
	}
	return errors.Join(errs...)
}

type multiNotifier []world.Notifier

func (m multiNotifier) Notify(a world.Advisory) error {
	var errs []error
	for _, n := range m {
		if n != nil {
			errs = append(errs, n.Notify(a))
		}
	}
	return errors.Join(errs...)
}
