package types

// MinApprovals 返回n个验证者时达成quorum需要的最少票数: ceil(2n/3)
//
// 整个仓库只在这里推导一次，其他地方都使用配置好的MIN_APPROVALS，
// n=4时为3，n=7时为5
func MinApprovals(n int) int {
	if n <= 0 {
		return 0
	}
	return (2*n + 2) / 3
}

// MaxFaulty 能容忍的最多拜占庭节点数 floor((n-1)/3)
func MaxFaulty(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}
