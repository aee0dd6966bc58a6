package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/dispatch"
	"github.com/Hweary/cmdClient/internal/event"
	"github.com/Hweary/cmdClient/internal/flags"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/platform"
)

var _ = Describe("Dispatcher", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness(10)
	})

	Describe("HandleMessage", func() {
		It("runs the matching command and caches its snapshot", func() {
			msg, res := h.receive("c1", "!echo hello there")

			Expect(res.Matched).To(BeTrue())
			Expect(res.Command).To(Equal("echo"))
			Expect(res.Prefix).To(Equal("!"))
			Expect(res.Outcome).To(Equal(command.Completed))
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"hello there"}))

			snap, ok := h.cache.Get(msg.ID)
			Expect(ok).To(BeTrue())
			Expect(snap.Command).To(Equal("echo"))
			Expect(snap.Responses).To(Equal(res.Responses))
			Expect(h.cache.IsRegistered(msg.ID)).To(BeFalse())
		})

		It("matches names case-insensitively", func() {
			_, res := h.receive("c1", "!ECHO loud")
			Expect(res.Command).To(Equal("echo"))
			Expect(res.Alias).To(Equal("echo"))
		})

		It("prefers the longest prefix", func() {
			_, res := h.receive("c1", "!!echo x")
			Expect(res.Prefix).To(Equal("!!"))
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"x"}))
		})

		It("falls back to a shorter prefix when the longer one matches nothing", func() {
			h.module.Add("!odd", func(ctx context.Context, inv *invocation.Invocation, _ flags.Values) error {
				_, err := inv.Reply(ctx, "odd")
				return err
			})
			_, res := h.receive("c1", "!!odd")
			Expect(res.Prefix).To(Equal("!"))
			Expect(res.Command).To(Equal("!odd"))
		})

		It("ignores messages without a known prefix or command", func() {
			_, res := h.receive("c1", "?echo hi")
			Expect(res.Matched).To(BeFalse())
			_, res = h.receive("c1", "!unknown")
			Expect(res.Matched).To(BeFalse())
			Expect(h.mem.Sent("c1")).To(BeEmpty())
			Expect(h.cache.Len()).To(BeZero())
		})

		It("uses a prefix function when one is set", func() {
			h = newHarness(10, dispatch.WithPrefixFunc(func(_ context.Context, msg platform.Message) []string {
				if msg.GuildID == "" {
					return []string{""}
				}
				return []string{"$"}
			}))

			_, res := h.receive("c1", "$echo guild")
			Expect(res.Matched).To(BeTrue())
			_, res = h.receive("c1", "!echo guild")
			Expect(res.Matched).To(BeFalse())
		})

		It("matches nothing without prefixes", func() {
			h.dispatcher.SetPrefixes(nil)
			_, res := h.receive("c1", "!echo hi")
			Expect(res.Matched).To(BeFalse())
			Expect(h.dispatcher.Prefixes()).To(BeEmpty())
		})
	})

	Describe("message parsers", func() {
		It("runs every parser for unmatched messages, isolated from failures", func() {
			var (
				mu   sync.Mutex
				seen []string
			)
			record := func(name string) dispatch.Parser {
				return func(_ context.Context, msg platform.Message) error {
					mu.Lock()
					defer mu.Unlock()
					seen = append(seen, name+":"+msg.Content)
					return nil
				}
			}
			h.dispatcher.AddMessageParser("late", record("late"), 10)
			h.dispatcher.AddMessageParser("boom", func(context.Context, platform.Message) error {
				panic("parser exploded")
			}, 0)
			h.dispatcher.AddMessageParser("fails", func(context.Context, platform.Message) error {
				return errors.New("nope")
			}, 1)
			h.dispatcher.AddMessageParser("early", record("early"), -5)

			h.receive("c1", "just chatting")
			h.dispatcher.Wait()

			Expect(seen).To(ConsistOf("early:just chatting", "late:just chatting"))
		})

		It("does not run parsers for commands", func() {
			called := false
			h.dispatcher.AddMessageParser("spy", func(context.Context, platform.Message) error {
				called = true
				return nil
			}, 0)

			h.receive("c1", "!echo hi")
			h.dispatcher.Wait()
			Expect(called).To(BeFalse())
		})
	})

	Describe("Invoke", func() {
		It("runs a synthetic invocation that is never cached", func() {
			res := h.dispatcher.Invoke(h.ctx, "c1", "g1", "u1", "echo from http")

			Expect(res.Matched).To(BeTrue())
			Expect(res.Outcome).To(Equal(command.Completed))
			Expect(contents(h.mem.Sent("c1"))).To(Equal([]string{"from http"}))
			Expect(h.cache.Len()).To(BeZero())
		})

		It("reports unknown commands", func() {
			res := h.dispatcher.Invoke(h.ctx, "c1", "g1", "u1", "missing")
			Expect(res.Matched).To(BeFalse())
		})

		It("skips commands of disabled modules", func() {
			Expect(h.registry.SetEnabled("test", false)).To(Succeed())
			res := h.dispatcher.Invoke(h.ctx, "c1", "g1", "u1", "echo hi")
			Expect(res.Matched).To(BeFalse())
		})
	})

	Describe("event bus", func() {
		var bus *event.Bus

		BeforeEach(func() {
			bus = event.NewBus(zerolog.Nop())
			DeferCleanup(bus.Close)
		})

		It("refuses after-event handlers before it is attached", func() {
			_, err := h.dispatcher.AddAfterEvent(event.MessageCreated, func(context.Context, event.Event) error { return nil }, 0)
			Expect(err).To(MatchError(dispatch.ErrNoBus))
		})

		It("handles published messages and reports results", func() {
			detach := h.dispatcher.Attach(bus)
			DeferCleanup(detach)

			finished := make(chan event.CommandFinishedData, 1)
			bus.Subscribe(event.CommandFinished, func(_ context.Context, e event.Event) error {
				finished <- e.Data.(event.CommandFinishedData)
				return nil
			})

			after := make(chan string, 1)
			_, err := h.dispatcher.AddAfterEvent(event.MessageCreated, func(_ context.Context, e event.Event) error {
				after <- e.Data.(event.MessageCreatedData).Message.Content
				return nil
			}, 0)
			Expect(err).NotTo(HaveOccurred())

			msg := h.mem.Receive(platform.Message{ChannelID: "c1", AuthorID: "u1", Content: "!echo via bus"})
			Expect(bus.Publish(event.Event{Type: event.MessageCreated, Data: event.MessageCreatedData{Message: msg}})).To(Succeed())

			Eventually(after).Should(Receive(Equal("!echo via bus")))

			var data event.CommandFinishedData
			Eventually(finished, time.Second).Should(Receive(&data))
			Expect(data.MessageID).To(Equal(msg.ID))
			Expect(data.Command).To(Equal("echo"))
			Expect(data.Outcome).To(Equal("completed"))
			Expect(data.Responses).To(HaveLen(1))
		})

		It("reacts to published edits", func() {
			DeferCleanup(h.dispatcher.Attach(bus))
			msg, _ := h.receive("c1", "!echo first")

			before, after, err := h.mem.Edit(msg.ChannelID, msg.ID, "!echo second")
			Expect(err).NotTo(HaveOccurred())
			bus.PublishSync(h.ctx, event.Event{Type: event.MessageEdited, Data: event.MessageEditedData{Before: before, After: after}})

			Eventually(func() []string { return contents(h.mem.Sent("c1")) }).Should(Equal([]string{"second"}))
		})
	})
})
