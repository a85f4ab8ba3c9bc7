package executor

import "encoding/binary"

// vaultInstructionDiscriminator tags every vault-program swap wrapper
// instruction so the on-chain program can dispatch to its swap handler.
var vaultInstructionDiscriminator = [8]byte{0x01, 0x53, 0x77, 0x61, 0x70, 0x00, 0x00, 0x00} // "Swap"

// buildVaultInstructionData serializes discriminator(8) || amount_in(8 LE)
// || min_amount_out(8 LE) || inner_data, per §4.12 step 3.
func buildVaultInstructionData(amountIn, minAmountOut uint64, innerData []byte) []byte {
	out := make([]byte, 8+8+8+len(innerData))
	copy(out[0:8], vaultInstructionDiscriminator[:])
	binary.LittleEndian.PutUint64(out[8:16], amountIn)
	binary.LittleEndian.PutUint64(out[16:24], minAmountOut)
	copy(out[24:], innerData)
	return out
}
