package util

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
    if v < 0 {
        return 0
    }
    if v > 1 {
        return 1
    }
    return v
}
