package session_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/internal/testhelpers"
	"github.com/grafana/git-receive-pack/policy"
	"github.com/grafana/git-receive-pack/pushopts"
	"github.com/grafana/git-receive-pack/session"
	sessionfakes "github.com/grafana/git-receive-pack/session/fakes"
)

// TestSessionBehaviorSuite runs the behavioral, end-to-end-flavored
// Driver.Run specs, alongside the table-driven tests in session_test.go.
func TestSessionBehaviorSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Driver Suite")
}

var _ = Describe("Driver.Run", func() {
	var (
		refs   *sessionfakes.FakeRefStore
		driver *session.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		refs = sessionfakes.NewFakeRefStore()
		driver = baseDriver(GinkgoT(), refs)
		driver.Logger = testhelpers.NewGinkgoLogger()
	})

	Context("a push with a single new branch", func() {
		It("is reported ok and the ref is written", func() {
			req := session.Request{List: command.List{update("refs/heads/feature", zeroOID, oidA)}}

			report, err := driver.Run(ctx, req, emptyPack())
			Expect(err).NotTo(HaveOccurred())
			Expect(report.UnpackOK).To(BeTrue())
			Expect(report.Commands).To(HaveLen(1))
			Expect(report.Commands[0].OK).To(BeTrue())
			Expect(refs.Writes).To(HaveLen(1))
		})
	})

	Context("an atomic push where one command is denied", func() {
		It("writes nothing and denies every command", func() {
			driver.Config.Policy = policy.Config{DenyDeletes: true}
			req := session.Request{
				List: command.List{
					update("refs/heads/keep", zeroOID, oidA),
					update("refs/heads/gone", oidB, zeroOID),
				},
				Options: pushopts.Options{Atomic: true},
			}

			report, err := driver.Run(ctx, req, emptyPack())
			Expect(err).NotTo(HaveOccurred())
			Expect(refs.Writes).To(BeEmpty())
			for _, c := range report.Commands {
				Expect(c.OK).To(BeFalse())
			}
		})
	})
})
