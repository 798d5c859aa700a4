package blocksync

// Delta computes the instructions that rebuild target from a base version
// described by sig. Regions identical to base blocks become references,
// everything else literal bytes. The scan slides the weak checksum one byte
// at a time and only pays for a strong checksum on a weak hit, so shifted
// content (inserts, deletes) still matches.
func Delta(sig *FileSignature, target []byte) ([]Block, error) {
	if sig == nil || len(sig.Blocks) == 0 {
		if len(target) == 0 {
			return nil, nil
		}
		return []Block{DataBlock(target)}, nil
	}

	bs := sig.BlockSize
	if err := ValidateBlockSize(bs); err != nil {
		return nil, err
	}

	candidates := make(map[uint32][]BlockSignature, len(sig.Blocks))
	for _, b := range sig.Blocks {
		candidates[b.Weak] = append(candidates[b.Weak], b)
	}

	var out []Block
	var lit []byte

	pos := 0
	var sum uint32
	rolling := false

	for pos+bs <= len(target) {
		if !rolling {
			sum = WeakChecksum(target[pos : pos+bs])
			rolling = true
		}

		matched := false
		if cands, ok := candidates[sum]; ok {
			strong := StrongChecksum(target[pos : pos+bs])
			for _, c := range cands {
				if c.Strong == strong {
					if len(lit) > 0 {
						out = append(out, DataBlock(lit))
						lit = nil
					}
					out = append(out, RefBlock(c.Index))
					pos += bs
					rolling = false
					matched = true
					break
				}
			}
		}
		if matched {
			continue
		}

		lit = append(lit, target[pos])
		if pos+bs < len(target) {
			sum = Roll(sum, target[pos], target[pos+bs], bs)
		} else {
			rolling = false
		}
		pos++
	}

	// The final base block may be shorter than bs and can only match the
	// exact tail of the target.
	if rest := target[pos:]; len(rest) > 0 {
		last := sig.Blocks[len(sig.Blocks)-1]
		if WeakChecksum(rest) == last.Weak && StrongChecksum(rest) == last.Strong {
			if len(lit) > 0 {
				out = append(out, DataBlock(lit))
				lit = nil
			}
			out = append(out, RefBlock(last.Index))
		} else {
			lit = append(lit, rest...)
		}
	}

	if len(lit) > 0 {
		out = append(out, DataBlock(lit))
	}
	return out, nil
}
