// Package events decodes OTC program events out of transaction log
// lines. Decoding is stateless and side-effect free: raw log lines in,
// typed events out, in emission order.
package events

import (
	"crypto/sha256"

	"github.com/hiddenbook/otc-watcher/internal/core/domain"
)

// discriminator is the 8-byte prefix Anchor prepends to every emitted
// event payload: sha256("event:<Name>")[:8].
type discriminator [8]byte

func eventDiscriminator(name string) discriminator {
	var d discriminator
	sum := sha256.Sum256([]byte("event:" + name))
	copy(d[:], sum[:8])
	return d
}

// catalog maps discriminators to payload prototypes. The set is
// closed: the program emits exactly these five events.
var catalog = map[discriminator]func() domain.EventData{
	eventDiscriminator(domain.EventDealCreated):    func() domain.EventData { return &domain.DealCreated{} },
	eventDiscriminator(domain.EventDealSettled):    func() domain.EventData { return &domain.DealSettled{} },
	eventDiscriminator(domain.EventOfferCreated):   func() domain.EventData { return &domain.OfferCreated{} },
	eventDiscriminator(domain.EventOfferSettled):   func() domain.EventData { return &domain.OfferSettled{} },
	eventDiscriminator(domain.EventBalanceUpdated): func() domain.EventData { return &domain.BalanceUpdated{} },
}
