package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/dispatch"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/platform"
)

var _ = Describe("Edit reaction", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(10)
	})

	Describe("unchanged content", func() {
		It("does nothing", func() {
			msg, _ := h.receive("c1", "!echo same")
			before, after, err := h.mem.Edit(msg.ChannelID, msg.ID, "!echo same")
			Expect(err).NotTo(HaveOccurred())

			res := h.dispatcher.HandleEdit(h.ctx, before, after)
			Expect(res.Matched).To(BeFalse())
			Expect(h.mem.DeleteCalls()).To(BeEmpty())
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"same"}))
		})
	})

	Describe("finished invocation", func() {
		It("deletes the old responses and runs the edited command", func() {
			msg, _ := h.receive("c1", "!echo before")
			old := h.mem.Sent("c1")
			Expect(old).To(HaveLen(1))

			res := h.edit(msg, "!echo after")
			Expect(res.Matched).To(BeTrue())
			Expect(res.Command).To(Equal("echo"))

			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"after"}))
			Expect(h.mem.DeleteCalls()).To(Equal(map[string]int{old[0].ID: 1}))
		})

		It("cleans up even when the edit no longer names a command", func() {
			msg, _ := h.receive("c1", "!two")
			res := h.edit(msg, "never mind")

			Expect(res.Matched).To(BeFalse())
			Expect(h.mem.Sent("c1")).To(BeEmpty())
			Expect(h.mem.DeleteCalls()).To(HaveLen(2))
		})

		It("uses a single bulk delete where the bot may manage messages", func() {
			msg, _ := h.receive("bulk", "!two")
			h.edit(msg, "!echo done")

			Expect(h.mem.BulkDeleteCalls()).To(Equal(1))
			Expect(contents(h.mem.Sent("bulk"))).To(Equal([]string{"done"}))
			for _, calls := range h.mem.DeleteCalls() {
				Expect(calls).To(Equal(1))
			}
		})

		It("deletes one by one in direct messages", func() {
			msg, _ := h.receive("dm", "!two")
			h.edit(msg, "nothing")

			Expect(h.mem.BulkDeleteCalls()).To(BeZero())
			Expect(h.mem.DeleteCalls()).To(HaveLen(2))
		})

		It("tolerates responses that were already deleted", func() {
			msg, _ := h.receive("c1", "!two")
			sent := h.mem.Sent("c1")
			Expect(h.mem.Delete(h.ctx, "c1", sent[0].ID)).To(Succeed())

			res := h.edit(msg, "!echo again")
			Expect(res.Outcome).To(Equal(command.Completed))
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"again"}))
		})

		It("leaves commands that ignore edits alone", func() {
			msg, _ := h.receive("c1", "!quiet")
			res := h.edit(msg, "!echo loud")

			Expect(res.Matched).To(BeFalse())
			Expect(h.mem.DeleteCalls()).To(BeEmpty())
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"shh"}))
		})

		It("never deletes a response twice across repeated edits", func() {
			msg, _ := h.receive("c1", "!echo one")
			h.edit(msg, "!echo two")
			h.edit(msg, "!echo three")

			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"three"}))
			Expect(h.mem.DeleteCalls()).To(HaveLen(2))
			for _, calls := range h.mem.DeleteCalls() {
				Expect(calls).To(Equal(1))
			}
		})
	})

	Describe("evicted snapshot", func() {
		It("treats the edit as a brand-new message", func() {
			h = newHarness(2)
			a, _ := h.receive("c1", "!echo A")
			h.receive("c1", "!echo B")
			h.receive("c1", "!echo C")
			Expect(h.cache.Contains(a.ID)).To(BeFalse())

			res := h.edit(a, "!echo A2")
			Expect(res.Matched).To(BeTrue())
			Expect(h.mem.DeleteCalls()).To(BeEmpty())
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"A", "B", "C", "A2"}))
			Expect(h.cache.Contains(a.ID)).To(BeTrue())
		})
	})

	Describe("running invocation", func() {
		var (
			msg      platform.Message
			inv      *invocation.Invocation
			cancels  int32
			finished chan struct{}
		)

		start := func(content string) {
			msg = h.mem.Receive(platform.Message{ChannelID: "c1", AuthorID: "u1", Content: content})
			finished = make(chan struct{})
			go func() {
				defer close(finished)
				h.dispatcher.HandleMessage(h.ctx, msg)
			}()
			Eventually(h.started).Should(Receive(&inv))
			atomic.StoreInt32(&cancels, 0)
			inv.Track(func(error) { atomic.AddInt32(&cancels, 1) })
			Expect(h.cache.IsRegistered(msg.ID)).To(BeTrue())
		}

		It("cancels once and deletes each response once when cleanup is triggered twice", func() {
			start("!slow")
			response := h.mem.Sent("c1")[0].ID
			before, after, err := h.mem.Edit(msg.ChannelID, msg.ID, "forget it")
			Expect(err).NotTo(HaveOccurred())

			var wg sync.WaitGroup
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					h.dispatcher.HandleEdit(h.ctx, before, after)
				}()
			}
			wg.Wait()

			Eventually(finished).Should(BeClosed())
			Expect(atomic.LoadInt32(&cancels)).To(Equal(int32(1)))
			Expect(h.cache.IsRegistered(msg.ID)).To(BeFalse())
			Expect(h.mem.DeleteCalls()).To(Equal(map[string]int{response: 1}))
			Expect(h.mem.Sent("c1")).To(BeEmpty())
		})

		It("re-runs the edited command after the cancelled one has finished", func() {
			start("!slow")
			res := h.edit(msg, "!echo replaced")

			Expect(res.Command).To(Equal("echo"))
			Eventually(finished).Should(BeClosed())
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"replaced"}))
		})

		It("cleans up after the timeout when the command ignores cancellation", func() {
			h = newHarness(10, dispatch.WithCleanupTimeout(50*time.Millisecond))
			start("!stubborn")
			response := h.mem.Sent("c1")[0].ID

			h.edit(msg, "stop")
			Expect(h.mem.DeleteCalls()).To(Equal(map[string]int{response: 1}))
			Expect(h.cache.IsRegistered(msg.ID)).To(BeTrue())

			close(h.release)
			Eventually(finished).Should(BeClosed())

			// The finished run refreshes the snapshot with the same response,
			// which must not be deleted again.
			h.edit(msg, "stop again")
			Expect(h.mem.DeleteCalls()).To(Equal(map[string]int{response: 1}))
		})

		It("keeps the snapshot of the re-run when the timed-out run finishes later", func() {
			h = newHarness(10, dispatch.WithCleanupTimeout(30*time.Millisecond))
			start("!stubborn")

			res := h.edit(msg, "!echo newer")
			Expect(res.Command).To(Equal("echo"))
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"newer"}))

			close(h.release)
			Eventually(finished).Should(BeClosed())

			snap, ok := h.cache.Get(msg.ID)
			Expect(ok).To(BeTrue())
			Expect(snap.Command).To(Equal("echo"))
			Expect(snap.Responses).To(HaveLen(1))

			h.edit(msg, "!echo newest")
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"newest"}))
		})
	})
})

var _ = Describe("Cancelled invocations", func() {
	It("report a silent cancellation", func() {
		h := newHarness(10)
		msg := h.mem.Receive(platform.Message{ChannelID: "c1", AuthorID: "u1", Content: "!slow"})

		results := make(chan command.Outcome, 1)
		go func() { results <- h.dispatcher.HandleMessage(context.Background(), msg).Outcome }()

		var inv *invocation.Invocation
		Eventually(h.started).Should(Receive(&inv))
		inv.Cancel(command.ErrFrameworkCancelled)

		Eventually(results).Should(Receive(Equal(command.Cancelled)))
		Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"working"}))
	})
})
