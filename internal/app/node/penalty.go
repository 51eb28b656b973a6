package node

// Penalty returns the load score derived from the stats. A nil snapshot scores 0.
//
//	players + playingPlayers*1.5 + systemLoad²*100 + frameDeficit*3 + framesNulled*2
func (s *Stats) Penalty() float64 {
	if s == nil {
		return 0
	}
	p := float64(s.Players) +
		float64(s.PlayingPlayers)*1.5 +
		s.CPU.SystemLoad*s.CPU.SystemLoad*100
	if s.FrameStats != nil {
		p += float64(s.FrameStats.Deficit)*3 + float64(s.FrameStats.Nulled)*2
	}
	return p
}
