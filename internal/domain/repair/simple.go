package repair

// FixDiscontinuities repairs Type I and Type II discontinuities in a bare integer array.
//
// A lone zero between x and x+2 becomes x+1. A run 0, 1, 2, ... starting right after x
// becomes x+1, x+2, ... for as long as the run keeps counting. Zeros at either edge are
// left unchanged because they cannot be bounded. The input is not modified.
func FixDiscontinuities(in []int64) []int64 {
	arr := append([]int64(nil), in...)
	n := len(arr)
	i := 1
	for i < n-1 {
		if arr[i] == 0 && arr[i-1] != 0 && arr[i+1] != 0 && arr[i+1]-arr[i-1] == 2 {
			arr[i] = arr[i-1] + 1
			i++
			continue
		}

		if arr[i] == 0 && arr[i+1] == 1 {
			next := arr[i-1] + 1
			j := i
			for j < n && arr[j] == int64(j-i) {
				arr[j] = next
				next++
				j++
			}
			i = j
			continue
		}

		i++
	}
	return arr
}

// FixTypeI fills every lone zero whose positive neighbours differ by exactly two.
// Consecutive zeros and zeros at the edges are left alone.
func FixTypeI(in []int64) []int64 {
	arr := append([]int64(nil), in...)
	fixTypeI(arr, func(v int64) bool { return v > 0 }, nil)
	return arr
}

// fixTypeI fills in place and reports each filled index to hit.
func fixTypeI(arr []int64, valid func(int64) bool, hit func(int)) {
	for i := 1; i < len(arr)-1; i++ {
		if arr[i] != 0 || !valid(arr[i-1]) || !valid(arr[i+1]) {
			continue
		}
		if arr[i+1]-arr[i-1] != 2 {
			continue
		}
		arr[i] = arr[i-1] + 1
		if hit != nil {
			hit(i)
		}
	}
}

// FixTypeIV resolves values below threshold. Sequences that never reach the threshold
// are returned unchanged. Leading sentinels are counted backward from the first valid
// value; every later sentinel becomes the unknown marker.
func FixTypeIV(in []int64, threshold int64) []int64 {
	arr := append([]int64(nil), in...)
	first := firstValid(arr, threshold)
	if first < 0 {
		return arr
	}
	for k := 0; k < first; k++ {
		arr[k] = arr[first] - int64(first-k)
	}
	for k := first + 1; k < len(arr); k++ {
		if arr[k] < threshold {
			arr[k] = unknown
		}
	}
	return arr
}

func firstValid(arr []int64, threshold int64) int {
	for i, v := range arr {
		if v >= threshold {
			return i
		}
	}
	return -1
}
