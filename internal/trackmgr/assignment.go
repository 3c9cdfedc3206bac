package trackmgr

import "math"

// infeasibleCost marks a measurement-candidate pair that failed gating;
// it is large enough to never be chosen by the assignment solver unless
// every alternative is equally infeasible.
const infeasibleCost = 1e18

// solveAssignment runs the Hungarian algorithm (Kuhn-Munkres, O(n^3)) over
// a rows x cols cost matrix and returns, for each row, the assigned column
// index or -1 if the matched cost was infeasible (§4.4). The matrix is
// padded to square internally; padding cells never win a real assignment.
func solveAssignment(cost [][]float64, rows, cols int) []int {
	if rows == 0 || cols == 0 {
		result := make([]int, rows)
		for i := range result {
			result[i] = -1
		}
		return result
	}
	n := rows
	if cols > n {
		n = cols
	}

	a := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i < rows && j < cols {
				a[i][j] = cost[i][j]
			} else {
				a[i][j] = infeasibleCost
			}
		}
	}

	const inf = math.MaxFloat64 / 2
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minV := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := 0; j <= n; j++ {
			minV[j] = inf
		}
		for {
			used[j0] = true
			i0, delta, j1 := p[j0], inf, -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := a[i0-1][j-1] - u[i0] - v[j]
				if cur < minV[j] {
					minV[j] = cur
					way[j] = j0
				}
				if minV[j] < delta {
					delta = minV[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minV[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	result := make([]int, rows)
	for j := 1; j <= n; j++ {
		row := p[j] - 1
		col := j - 1
		if row < rows {
			if col < cols && a[row][col] < infeasibleCost {
				result[row] = col
			} else {
				result[row] = -1
			}
		}
	}
	return result
}
