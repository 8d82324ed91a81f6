package playback

// Lights fans light and dim calls out to several lighting collaborators,
// e.g. the LED strip and connected browser keyboards.
type Lights []Lighting

func (l Lights) Light(indices []int) {
	if len(indices) == 0 {
		return
	}
	for _, x := range l {
		x.Light(indices)
	}
}

func (l Lights) Dim(indices []int) {
	if len(indices) == 0 {
		return
	}
	for _, x := range l {
		x.Dim(indices)
	}
}
