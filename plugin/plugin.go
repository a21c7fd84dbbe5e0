package plugin

import (
	"github.com/ipfs/kubo/plugin"
	"github.com/ipld/go-ipld-prime/multicodec"

	"github.com/vulcanize/go-codec-dagbtc/header"
	"github.com/vulcanize/go-codec-dagbtc/tx"
)

// Plugins is exported list of plugins that will be loaded
var Plugins = []plugin.Plugin{
	&btcIPLDPlugin{},
}

type btcIPLDPlugin struct{}

var _ plugin.PluginIPLD = (*btcIPLDPlugin)(nil)

// Name satisfies the Plugin interface
func (*btcIPLDPlugin) Name() string {
	return "ipld-dag-btc"
}

// Version satisfies the Plugin interface
func (*btcIPLDPlugin) Version() string {
	return "0.0.1"
}

// Init satisfies the Plugin interface
func (*btcIPLDPlugin) Init(_ *plugin.Environment) error {
	return nil
}

// Register satisfies the PluginIPLD interface. The witness commitment codec
// is deliberately absent: its 64-byte payload is an opaque hash pair with no
// node structure of its own.
func (*btcIPLDPlugin) Register(reg multicodec.Registry) error {
	reg.RegisterDecoder(header.MultiCodecType, header.Decode)
	reg.RegisterDecoder(tx.MultiCodecType, tx.Decode)

	reg.RegisterEncoder(header.MultiCodecType, header.Encode)
	reg.RegisterEncoder(tx.MultiCodecType, tx.Encode)
	return nil
}
