// Package session sequences the push protocol's phases end to end: parse
// the command/options stream, ingest the pack into a quarantine, delegate
// to proc-receive, run the three hooks, apply the policy engine, write
// refs, and produce the report-status response. It is the state-machine
// driver the leaf packages (policy, quarantine, hooks, procreceive,
// capability, command, pushopts, shallow) are wired into.
package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grafana/git-receive-pack/capability"
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/errs"
	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/pktline"
	"github.com/grafana/git-receive-pack/pushopts"
)

// Request is everything the client sent before the pack stream.
type Request struct {
	List    command.List
	Options pushopts.Options
}

// AdvertiseRefs writes the initial ref advertisement: each ref sorted by
// name, the server's capability set attached to the first line (or to a
// synthetic "capabilities^{}" line if the repository has no refs yet),
// terminated by a flush.
func AdvertiseRefs(w *pktline.Writer, refs map[string]oid.OID, caps capability.Set) error {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		line := fmt.Sprintf("%s capabilities^{}\x00%s", strings.Repeat("0", 40), caps.String())
		if err := w.WriteLine(line); err != nil {
			return err
		}
		return w.WriteFlush()
	}

	for i, name := range names {
		line := refs[name].String() + " " + name
		if i == 0 {
			line += "\x00" + caps.String()
		}
		if err := w.WriteLine(line); err != nil {
			return err
		}
	}
	return w.WriteFlush()
}

// ParseRequest reads the command list and its attached options off r.
// Shallow/unshallow lines are interleaved with command lines in the same
// flush-terminated batch (distinguished by their "shallow "/"unshallow "
// prefix), matching how the real protocol sends them; a second,
// independently flush-terminated batch of push-option lines follows only
// when the push-options capability was negotiated.
func ParseRequest(r *pktline.Reader, advertised capability.Set) (Request, error) {
	lines, kind, err := r.ReadLines()
	if err != nil {
		return Request{}, errs.New(errs.KindIO, "reading command list", err)
	}
	if kind != pktline.KindFlush {
		return Request{}, errs.New(errs.KindProtocol, "command list not flush-terminated", nil)
	}
	if len(lines) == 0 {
		return Request{}, errs.New(errs.KindValidation, "empty command list", nil)
	}

	var shallowLines, cmdLines [][]byte
	for _, l := range lines {
		s := string(l)
		if strings.HasPrefix(s, "shallow ") || strings.HasPrefix(s, "unshallow ") {
			shallowLines = append(shallowLines, l)
		} else {
			cmdLines = append(cmdLines, l)
		}
	}

	list, rawCaps, err := command.ParseLines(cmdLines)
	if err != nil {
		return Request{}, errs.New(errs.KindValidation, "parsing commands", err)
	}

	requested := capability.Parse(rawCaps)
	negotiated, err := capability.Negotiate(advertised, requested)
	if err != nil {
		return Request{}, errs.New(errs.KindProtocol, "negotiating capabilities", err)
	}

	opts := pushopts.FromCapabilities(negotiated)

	for _, l := range shallowLines {
		isUnshallow, id, err := pushopts.ParseShallowLine(string(l))
		if err != nil {
			return Request{}, errs.New(errs.KindValidation, "parsing shallow line", err)
		}
		if isUnshallow {
			opts.UnshallowOIDs = append(opts.UnshallowOIDs, id)
		} else {
			opts.ShallowOIDs = append(opts.ShallowOIDs, id)
		}
	}

	if opts.Capabilities.Has(capability.PushOptions) {
		optLines, kind, err := r.ReadLines()
		if err != nil {
			return Request{}, errs.New(errs.KindIO, "reading push options", err)
		}
		if kind != pktline.KindFlush {
			return Request{}, errs.New(errs.KindProtocol, "push options not flush-terminated", nil)
		}
		opts.PushOptions = pushopts.ParsePushOptionLines(optLines)
	}

	return Request{List: list, Options: opts}, nil
}
