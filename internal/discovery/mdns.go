// ABOUTME: mDNS discovery of a local generation gateway
// ABOUTME: Browses for gateways when no server address is configured
package discovery

import (
	"context"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// serviceType is the gateway's advertised mDNS service.
const serviceType = "_soundrift-gw._tcp"

// GatewayInfo describes a discovered generation gateway.
type GatewayInfo struct {
	Name string
	Host string
	Port int
}

// Browser searches the local network for generation gateways.
type Browser struct {
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	gateways chan *GatewayInfo
}

// NewBrowser creates a gateway browser.
func NewBrowser(log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Browser{
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		gateways: make(chan *GatewayInfo, 10),
	}
}

// Browse starts the background query loop.
func (b *Browser) Browse() {
	go b.browseLoop()
}

// Gateways returns the channel of discovered gateways.
func (b *Browser) Gateways() <-chan *GatewayInfo {
	return b.gateways
}

// Stop stops browsing.
func (b *Browser) Stop() {
	b.cancel()
}

// browseLoop issues repeated mDNS queries until stopped.
func (b *Browser) browseLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				gw := &GatewayInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				b.log.Info("discovered generation gateway",
					zap.String("name", gw.Name),
					zap.String("host", gw.Host),
					zap.Int("port", gw.Port))

				select {
				case b.gateways <- gw:
				case <-b.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: serviceType,
			Domain:  "local",
			Timeout: 3 * time.Second,
			Entries: entries,
		}

		if err := mdns.Query(params); err != nil {
			b.log.Warn("mdns query failed", zap.Error(err))
		}
		close(entries)
	}
}
