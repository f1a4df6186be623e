package rtp265

import "github.com/pion/randutil"

var globalSSRCGenerator = randutil.NewMathRandomGenerator()

// randomSSRC picks a random, non-zero synchronization source identifier.
// SSRC=0 is reserved by convention for "no RTP packet sent yet" (spec.md
// §9's note on the reference sender's degenerate first-SR behavior).
func randomSSRC() uint32 {
	for {
		if v := globalSSRCGenerator.Uint32(); v != 0 {
			return v
		}
	}
}
