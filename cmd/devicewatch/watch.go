package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/livecache/iot"
)

// watch follows one device until ctx ends. The last ping is seeded from the
// snapshot store when one is configured and mirrored back on every load.
func (a *app) watch(ctx context.Context, name string, interval time.Duration) (err error) {
	defer func() { err = errors.Join(err, a.close()) }()

	if addr := a.cfg.Metrics.Addr; addr != "" {
		a.serveMetrics(ctx, addr)
	}
	log := a.log.With(zap.String("device", name))

	g, ctx := errgroup.WithContext(ctx)
	if a.pings != nil {
		pc := a.svc.PingCache()
		found, err := a.pings.Seed(ctx, pc, name, iot.LastEntry())
		switch {
		case err != nil:
			log.Warn("snapshot seed failed", zap.Error(err))
		case found:
			log.Info("last ping restored from snapshot")
		}
		g.Go(func() error { return a.pings.Mirror(ctx, pc, name, iot.LastEntry()) })
	}
	g.Go(func() error { return a.follow(ctx, log, name) })
	g.Go(func() error { return a.poll(ctx, log, name, interval) })
	return g.Wait()
}

// follow logs every availability change seen on the last-ping subscription.
func (a *app) follow(ctx context.Context, log *zap.Logger, name string) error {
	sub, err := a.svc.ObserveLastPing(ctx, name)
	if err != nil {
		return err
	}
	defer sub.Close()

	last := iot.Availability(-1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			av := iot.AvailabilityOf(e, time.Now())
			if av == last {
				continue
			}
			last = av
			fields := []zap.Field{zap.Stringer("availability", av), zap.Stringer("status", e.Status)}
			if e.Err != nil {
				fields = append(fields, zap.Error(e.Err))
			}
			log.Info("availability changed", fields...)
		}
	}
}

func (a *app) poll(ctx context.Context, log *zap.Logger, name string, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		av, err := a.svc.Check(ctx, name)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			log.Warn("check failed", zap.Stringer("availability", av), zap.Error(err))
		default:
			log.Debug("checked", zap.Stringer("availability", av))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// list prints devices, optionally only those named name.
func (a *app) list(ctx context.Context, w io.Writer, name string) (err error) {
	defer func() { err = errors.Join(err, a.close()) }()

	var q iot.FindOptions
	if name != "" {
		q.Filter = map[string]any{"name": map[string]any{"$eq": name}}
	}
	devices, err := a.svc.FindDevices(ctx, q)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tIP\tMAC\tUPDATED")
	for _, d := range devices.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.IPAddress, d.MACAddress, d.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
