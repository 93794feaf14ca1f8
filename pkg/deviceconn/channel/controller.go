package channel

import (
	"net"

	"github.com/posturelab/posturehub/config"
	"github.com/posturelab/posturehub/pkg/bus"
	"github.com/posturelab/posturehub/pkg/ingest"
	"github.com/posturelab/posturehub/pkg/notify"
	"github.com/posturelab/posturehub/pkg/registry"
	"github.com/posturelab/posturehub/pkg/sessiontrack"
	"github.com/posturelab/posturehub/pkg/storage"
)

// Controller holds the long-lived collaborators shared by every device
// channel of this process. The session tracker must be the same instance the
// REST layer mutates through, otherwise the per-device serialization is lost.
type Controller struct {
	cfg       *config.Config
	store     storage.Interface
	bus       bus.Interface
	registry  *registry.Registry
	tracker   *sessiontrack.Tracker
	ingestor  *ingest.Ingestor
	publisher *notify.Publisher
}

func NewController(cfg *config.Config, store storage.Interface, b bus.Interface,
	reg *registry.Registry, tracker *sessiontrack.Tracker,
	ing *ingest.Ingestor, pub *notify.Publisher) *Controller {
	return &Controller{
		cfg:       cfg,
		store:     store,
		bus:       b,
		registry:  reg,
		tracker:   tracker,
		ingestor:  ing,
		publisher: pub,
	}
}

// NewChannel creates a device channel handler for an upgraded websocket
// connection. The channel stays in the connecting state until Open admits it;
// only the outbox worker runs before that.
func (ctrl *Controller) NewChannel(conn net.Conn, terminateCh chan<- struct{}) *Channel {
	ch := &Channel{
		ctrl:          ctrl,
		conn:          conn,
		status:        StatusConnecting,
		stopCh:        make(chan struct{}),
		wsTerminateCh: terminateCh,
		wsOutboxCh:    make(chan *Response, 100),
	}

	go ch.outboxWorker()

	return ch
}
