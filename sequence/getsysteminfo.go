package sequence

import (
	"context"

	"github.com/EVerest/zvt/packet"
	"github.com/EVerest/zvt/packets"
	feig "github.com/EVerest/zvt/packets/feig"
	"github.com/EVerest/zvt/transport"
)

var getSystemInfoCandidates = []candidate{
	{0x06, 0x0f, func() packet.Command { return &feig.CVendFunctionsEnhancedSystemInformationCompletion{} }},
	{0x06, 0x1e, func() packet.Command { return &packets.Abort{} }},
}

// GetSystemInfo runs the Feig cVEND "enhanced system information" dialog:
// a CVendFunctions request answered by either the enhanced system
// information completion or an Abort.
func GetSystemInfo(ctx context.Context, stream *transport.Stream, input *feig.CVendFunctions) (<-chan Event, error) {
	return run(ctx, stream, input, getSystemInfoCandidates, false, func(cmd packet.Command) bool {
		switch cmd.(type) {
		case *feig.CVendFunctionsEnhancedSystemInformationCompletion, *packets.Abort:
			return true
		}
		return false
	})
}
