package statistics

// RunningMean folds sample into a mean computed over count previous samples.
// Callers increment their count after calling it.
func RunningMean(mean float64, count int64, sample float64) float64 {
	if count <= 0 {
		return sample
	}
	return (mean*float64(count) + sample) / float64(count+1)
}

// MeanSample is a local mean together with the number of samples behind it.
type MeanSample struct {
	Mean  float64
	Count int64
}

// WeightedMean combines local means weighted by their sample counts. With no
// samples at all the mean is 0.
func WeightedMean(samples []MeanSample) float64 {
	var sum float64
	var count int64
	for _, s := range samples {
		if s.Count <= 0 {
			continue
		}
		sum += s.Mean * float64(s.Count)
		count += s.Count
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// intervalStat accumulates max and mean of a series of durations in seconds.
// It is not safe for concurrent use; StreamStatsTracker guards it.
type intervalStat struct {
	max   float64
	mean  float64
	count int64
}

func (s *intervalStat) observe(seconds float64) {
	if seconds > s.max {
		s.max = seconds
	}
	s.mean = RunningMean(s.mean, s.count, seconds)
	s.count++
}
