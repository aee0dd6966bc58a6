package dispatch

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/logging"
	"github.com/Hweary/cmdClient/internal/platform"
)

// maxParallelDeletes bounds concurrent single-message deletes.
const maxParallelDeletes = 5

var errStillRunning = errors.New("invocation still running")

// HandleEdit reacts to an edited message. Messages without a cached
// snapshot are dispatched as new. Otherwise the previous run's responses
// are cleaned up and the message re-parsed, as the snapshot's edit flags
// allow. Cleanup failures are logged and do not prevent the re-parse.
func (d *Dispatcher) HandleEdit(ctx context.Context, before, after platform.Message) Result {
	if before.Content == after.Content {
		return Result{}
	}
	log := logging.ForMessage(d.log, after.ID)
	logEditDiff(log, before.Content, after.Content)

	snap, ok := d.cache.Get(after.ID)
	if !ok {
		return d.HandleMessage(ctx, after)
	}

	if snap.CleanupOnEdit {
		if err := d.cleanup(ctx, log, snap); err != nil {
			log.Error().Err(err).Msg("Failed to clean up command responses after edit")
		}
	}
	if snap.ReparseOnEdit {
		return d.HandleMessage(ctx, after)
	}
	return Result{}
}

// cleanup stops a still-running invocation for the snapshot's message and
// deletes every response not already claimed by an earlier cleanup.
func (d *Dispatcher) cleanup(ctx context.Context, log zerolog.Logger, snap invocation.Snapshot) error {
	var extra []string
	if inv, ok := d.cache.Live(snap.MessageID); ok {
		if inv.Cancel(command.ErrFrameworkCancelled) {
			log.Debug().Msg("Cancelled running invocation after edit")
		}
		if err := d.awaitRelease(ctx, snap.MessageID); err != nil {
			log.Warn().Err(err).Dur("timeout", d.cleanupAfter).Msg("Invocation did not finish after cancellation, cleaning up anyway")
			extra = inv.Responses()
		}
	}

	ids := d.cache.TakeResponses(snap.MessageID, extra...)
	if len(ids) == 0 {
		return nil
	}
	log.Debug().Strs("responses", ids).Msg("Deleting command responses")
	return d.deleteResponses(ctx, snap.ChannelID, snap.GuildID != "", ids)
}

// awaitRelease polls until the message has no running invocation, for at
// most the cleanup timeout.
func (d *Dispatcher) awaitRelease(ctx context.Context, messageID string) error {
	waitCtx, cancel := context.WithTimeout(ctx, d.cleanupAfter)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(d.pollInterval), waitCtx)
	return backoff.Retry(func() error {
		if d.cache.IsRegistered(messageID) {
			return errStillRunning
		}
		return nil
	}, b)
}

// deleteResponses removes ids from a channel, in one bulk call when the bot
// may manage messages in a guild channel, otherwise one by one. Messages
// that are already gone are not an error.
func (d *Dispatcher) deleteResponses(ctx context.Context, channelID string, inGuild bool, ids []string) error {
	if inGuild {
		canManage, err := d.client.CanManageMessages(ctx, channelID)
		switch {
		case errors.Is(err, platform.ErrNotFound):
			return nil
		case err != nil:
			d.log.Debug().Err(err).Str("channel", channelID).Msg("Could not read channel permissions")
		case canManage && len(ids) > 1:
			err := d.client.BulkDelete(ctx, channelID, ids)
			if errors.Is(err, platform.ErrNotFound) {
				return nil
			}
			return err
		}
	}

	var g errgroup.Group
	g.SetLimit(maxParallelDeletes)
	for _, id := range ids {
		g.Go(func() error {
			err := d.client.Delete(ctx, channelID, id)
			if errors.Is(err, platform.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func logEditDiff(log zerolog.Logger, before, after string) {
	e := log.Debug()
	if !e.Enabled() {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	e.Str("delta", dmp.DiffToDelta(diffs)).
		Int("distance", dmp.DiffLevenshtein(diffs)).
		Msg("Message edited")
}
