package session

import (
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/pktline"
	"github.com/grafana/git-receive-pack/policy"
)

// CommandReport is one command's final verdict, ready to render as a
// report-status line.
type CommandReport struct {
	Name   string
	OK     bool
	Reason string
	// Options carries key/value pairs to emit as trailing `option` lines
	// under report-status-v2 (e.g. a proc-receive-assigned
	// {"refname", "refs/heads/main"} or {"new-oid", "<hex>"}).
	Options []ReportOption
}

// ReportOption is one report-status-v2 `option <key> <value>\n` line
// attached to the preceding command. Unlike the proc-receive helper's own
// `option <key>[=<value>]` wire syntax, the client-facing
// report-status-v2 line is space-separated
// ("option refname refs/heads/main").
type ReportOption struct {
	Key   string
	Value string
}

// Report is the full response a session produces, in wire order.
type Report struct {
	UnpackOK     bool
	UnpackReason string
	Commands     []CommandReport
}

// WriteReport renders report-status (or report-status-v2, if v2 is
// set): an unpack line, one ok/ng line per command in wire order,
// optional trailing option lines under v2, then a flush.
func WriteReport(w *pktline.Writer, report Report, v2 bool) error {
	if report.UnpackOK {
		if err := w.WriteLine("unpack ok"); err != nil {
			return err
		}
	} else {
		reason := report.UnpackReason
		if reason == "" {
			reason = "unpack failed"
		}
		if err := w.WriteLine("unpack " + reason); err != nil {
			return err
		}
	}

	for _, c := range report.Commands {
		if c.OK {
			if err := w.WriteLine("ok " + c.Name); err != nil {
				return err
			}
		} else {
			if err := w.WriteLine("ng " + c.Name + " " + c.Reason); err != nil {
				return err
			}
		}
		if v2 {
			for _, opt := range c.Options {
				line := "option " + opt.Key
				if opt.Value != "" {
					line += " " + opt.Value
				}
				if err := w.WriteLine(line); err != nil {
					return err
				}
			}
		}
	}

	return w.WriteFlush()
}

// sessionFatalReport renders a whole-session failure: unpack carries
// reason, and every command is reported denied too so report-status
// still yields exactly one reply per command in wire order.
func sessionFatalReport(list command.List, reason string) Report {
	report := Report{UnpackOK: false, UnpackReason: reason}
	for _, u := range list {
		report.Commands = append(report.Commands, CommandReport{Name: u.Name, OK: false, Reason: "aborted"})
	}
	return report
}

// cancelledReport renders the response for a session that observed
// cancellation mid-flight.
func cancelledReport(list command.List) Report {
	report := Report{UnpackOK: false, UnpackReason: "cancelled"}
	for _, u := range list {
		report.Commands = append(report.Commands, CommandReport{Name: u.Name, OK: false, Reason: "cancelled"})
	}
	return report
}

// preReceiveRejectedReport renders the response for a push whose pack
// ingested fine (unpack ok) but whose pre-receive hook declined the
// whole push, so every command is reported ng.
func preReceiveRejectedReport(list command.List) Report {
	report := Report{UnpackOK: true}
	for _, u := range list {
		report.Commands = append(report.Commands, CommandReport{Name: u.Name, OK: false, Reason: "pre-receive hook declined"})
	}
	return report
}

// buildReport renders the final per-command verdicts, in wire order,
// using each command's original client-facing name (proc-receive
// rewrites are surfaced only as trailing option lines).
func buildReport(slots []slot) Report {
	report := Report{UnpackOK: true}
	for _, s := range slots {
		cr := CommandReport{Name: s.orig.Name}
		if s.decision.Outcome == policy.Denied {
			cr.Reason = s.decision.Message
		} else {
			cr.OK = true
			cr.Options = s.options
		}
		report.Commands = append(report.Commands, cr)
	}
	return report
}
