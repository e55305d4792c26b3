package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/client/pagination"
	"github.com/dmitrijs2005/momentkeeper/internal/client/services"
)

func (a *App) fail(err error) error {
	fmt.Fprintf(a.out, "Error: %v\n", err)
	return err
}

func (a *App) Register(ctx context.Context) error {
	resp, err := a.session.Register(ctx)
	if errors.Is(err, services.ErrAlreadyRegistered) {
		fmt.Fprintln(a.out, "Already registered.")
		return nil
	}
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "Registered as %s (%s tier).\n", resp.UserID, resp.Tier)
	return nil
}

// Add records a moment. Without inline text it reads lines until an
// empty one; "-5m" style leading tokens move happenedAt back.
func (a *App) Add(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		var err error
		text, err = GetMultiline(a.reader, "What happened?", a.out)
		if err != nil {
			return a.fail(err)
		}
	}

	in := services.CreateInput{Text: text}
	if ago, rest, ok := splitTimeAgo(text); ok {
		in.TimeAgo, in.Text = ago, rest
	}

	v, err := a.moments.Create(ctx, in)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "Saved %s. %s\n", shortID(v.ClientID), v.OfflinePraise)
	return nil
}

func (a *App) List(ctx context.Context) error {
	views, err := a.moments.ListLocal(ctx)
	if err != nil {
		return a.fail(err)
	}
	if len(views) == 0 {
		fmt.Fprintln(a.out, "No moments yet.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintln(a.out, formatLine(v))
	}
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	feed, err := a.moments.LoadFirstPage(ctx)
	if err != nil {
		return a.fail(err)
	}
	a.printFeed(feed)
	return nil
}

func (a *App) More(ctx context.Context) error {
	feed, err := a.moments.LoadMore(ctx)
	if errors.Is(err, pagination.ErrNoMorePages) {
		fmt.Fprintln(a.out, "Nothing more to load.")
		return nil
	}
	if err != nil {
		return a.fail(err)
	}
	a.printFeed(feed)
	return nil
}

func (a *App) printFeed(feed services.Feed[services.View]) {
	for _, v := range feed.Items {
		fmt.Fprintln(a.out, formatLine(v))
	}
	switch {
	case feed.LimitReached:
		fmt.Fprintln(a.out, "Older moments are available on the premium tier.")
	case feed.HasMore:
		fmt.Fprintln(a.out, "Type 'more' to load older moments.")
	}
}

func (a *App) Timeline(ctx context.Context, more bool) error {
	feed, err := a.moments.Timeline(ctx, more)
	if errors.Is(err, pagination.ErrNoMorePages) {
		fmt.Fprintln(a.out, "Nothing more to load.")
		return nil
	}
	if err != nil {
		return a.fail(err)
	}

	day := ""
	for _, e := range feed.Items {
		if e.Day != day {
			day = e.Day
			fmt.Fprintf(a.out, "%s\n", day)
		}
		fmt.Fprintf(a.out, "  %s  %s\n", e.HappenedAt.Local().Format("15:04"), e.Text)
		if e.Praise != nil {
			fmt.Fprintf(a.out, "         %s\n", *e.Praise)
		}
	}
	if feed.LimitReached {
		fmt.Fprintln(a.out, "Older moments are available on the premium tier.")
	}
	return nil
}

func (a *App) Show(ctx context.Context, ref string) error {
	id, err := a.moments.Resolve(ctx, ref)
	if err != nil {
		return a.fail(err)
	}
	v, err := a.moments.Get(ctx, id)
	if err != nil {
		return a.fail(err)
	}

	fmt.Fprintf(a.out, "id:        %s\n", v.ClientID)
	if v.ServerID != "" {
		fmt.Fprintf(a.out, "server id: %s\n", v.ServerID)
	}
	fmt.Fprintf(a.out, "text:      %s\n", v.Text)
	fmt.Fprintf(a.out, "happened:  %s (%s)\n", v.HappenedAt.Local().Format(time.DateTime), v.Timezone)
	fmt.Fprintf(a.out, "praise:    %s\n", v.Praise())
	if v.Enrichment.Action != "" {
		fmt.Fprintf(a.out, "action:    %s\n", v.Enrichment.Action)
	}
	if len(v.Enrichment.Tags) > 0 {
		fmt.Fprintf(a.out, "tags:      %s\n", strings.Join(v.Enrichment.Tags, ", "))
	}
	fmt.Fprintf(a.out, "favorite:  %t\n", v.IsFavorite)
	fmt.Fprintf(a.out, "state:     %s\n", v.State)
	if v.LastSyncError != "" {
		fmt.Fprintf(a.out, "error:     %s\n", v.LastSyncError)
	}
	if v.SyncBlocked {
		fmt.Fprintln(a.out, "Sync is paused for this moment. Type 'retry' to try again.")
	}
	return nil
}

func (a *App) Favorite(ctx context.Context, ref string) error {
	return a.mutate(ctx, ref, a.moments.ToggleFavorite, func(v services.View) string {
		if v.IsFavorite {
			return "Added to favorites."
		}
		return "Removed from favorites."
	})
}

func (a *App) Delete(ctx context.Context, ref string) error {
	return a.mutate(ctx, ref, a.moments.Delete, func(v services.View) string {
		return fmt.Sprintf("Deleted. Type 'restore %s' to undo.", shortID(v.ClientID))
	})
}

func (a *App) Restore(ctx context.Context, ref string) error {
	return a.mutate(ctx, ref, a.moments.Restore, func(services.View) string { return "Restored." })
}

func (a *App) mutate(ctx context.Context, ref string, op func(context.Context, string) (services.View, error), msg func(services.View) string) error {
	id, err := a.moments.Resolve(ctx, ref)
	if err != nil {
		return a.fail(err)
	}
	v, err := op(ctx, id)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, msg(v))
	return nil
}

func (a *App) Archived(ctx context.Context) error {
	views, err := a.moments.ListArchived(ctx)
	if err != nil {
		return a.fail(err)
	}
	if len(views) == 0 {
		fmt.Fprintln(a.out, "No deleted moments.")
		return nil
	}
	for _, v := range views {
		fmt.Fprintln(a.out, formatLine(v))
	}
	return nil
}

func (a *App) Retry(ctx context.Context, ref string) error {
	id, err := a.moments.Resolve(ctx, ref)
	if err != nil {
		return a.fail(err)
	}
	if err := a.moments.Retry(ctx, id); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Retrying in the background.")
	return nil
}

func (a *App) Enrich(ctx context.Context, ref string) error {
	id, err := a.moments.Resolve(ctx, ref)
	if err != nil {
		return a.fail(err)
	}
	v, err := a.moments.Enrich(ctx, id)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, v.Praise())
	if v.Enrichment.Action != "" {
		fmt.Fprintf(a.out, "Next: %s\n", v.Enrichment.Action)
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	res, err := a.session.Sweep(ctx)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "Synced %d of %d moments.\n", res.Succeeded, res.Attempted)
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.moments.Status(ctx)
	if err != nil {
		return a.fail(err)
	}
	sess, err := a.session.Current(ctx)
	if err != nil {
		return a.fail(err)
	}

	if sess.UserID != "" {
		fmt.Fprintf(a.out, "user:       %s (%s)\n", sess.UserID, sess.Tier)
	}
	fmt.Fprintf(a.out, "online:     %t\n", sess.Online)
	if !sess.LastSweep.IsZero() {
		fmt.Fprintf(a.out, "last sync:  %s\n", sess.LastSweep.Local().Format(time.DateTime))
	}
	fmt.Fprintf(a.out, "moments:    %d (%d deleted)\n", st.Total, st.Archived)
	fmt.Fprintf(a.out, "not synced: %d, syncing: %d, failed: %d, paused: %d, awaiting praise: %d\n",
		st.Unsynced, st.Syncing, st.Failed, st.Blocked, st.PendingEnrichment)
	return nil
}

func (a *App) Purge(ctx context.Context) error {
	if !Confirm(a.reader, "Permanently remove all deleted moments?", a.out) {
		return nil
	}
	res, err := a.moments.Purge(ctx)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "Removed %d local and %d remote moments.\n", res.Local, res.Remote)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if !Confirm(a.reader, "Logging out removes every moment stored on this device. Continue?", a.out) {
		return nil
	}
	if err := a.session.ClearOfflineData(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func formatLine(v services.View) string {
	star := " "
	if v.IsFavorite {
		star = "*"
	}
	return fmt.Sprintf("%s %s %s  %s | %s (%s)",
		shortID(v.ClientID), star, v.HappenedAt.Local().Format("2006-01-02 15:04"), v.Text, v.Praise(), v.State)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// splitTimeAgo recognizes a leading "-<duration>" token such as "-90m".
func splitTimeAgo(text string) (time.Duration, string, bool) {
	first, rest, ok := strings.Cut(strings.TrimSpace(text), " ")
	if !ok || !strings.HasPrefix(first, "-") {
		return 0, text, false
	}
	d, err := time.ParseDuration(first[1:])
	if err != nil || d <= 0 || d > api.MaxTimeAgo*time.Second {
		return 0, text, false
	}
	return d, rest, true
}
