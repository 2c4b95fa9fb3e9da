package repair

// Profile is a detection-only summary of a raw serial stream.
type Profile struct {
	TypeI    int   `yaml:"type_i"`
	TypeII   int   `yaml:"type_ii"`
	TypeIII  int   `yaml:"type_iii"`
	Sections []int `yaml:"-"` // lengths of continuous stretches between discontinuities
}

// LongestSection returns the longest continuous stretch.
func (p Profile) LongestSection() int {
	longest := 0
	for _, s := range p.Sections {
		if s > longest {
			longest = s
		}
	}
	return longest
}

// Detect counts discontinuities without repairing anything. A zero followed by 1 is a
// reset (Type II), a zero followed by anything larger is a dropout (Type I), and a step
// of more than one between non-zero neighbours is a jump (Type III).
func Detect(data []int64) Profile {
	var p Profile
	if len(data) == 0 {
		return p
	}

	start := 0
	for i := 0; i < len(data)-1; i++ {
		switch {
		case data[i] == 0:
			if data[i+1] == 1 {
				p.TypeII++
			} else if data[i+1] > 0 {
				p.TypeI++
			}
			p.Sections = append(p.Sections, i-start)
			start = i + 1
		case data[i+1]-data[i] > 1:
			p.TypeIII++
			p.Sections = append(p.Sections, i-start+1)
			start = i + 1
		}
	}
	if data[len(data)-1] != 0 && start <= len(data)-1 {
		p.Sections = append(p.Sections, len(data)-start)
	}
	return p
}
