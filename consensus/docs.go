package consensus

// 每个区块的生命周期（按区块hash独立推进，多个区块可以同时在途）
//
//  tx arrives                       +-----------+
//  (pool full / inactivity) ------> |  Propose  |  proposer: CreateProposal + PRE-PREPARE
//                                   +-----+-----+
//                                         | 校验通过，进入BlockPool，投prepare
//                                         v
//                                   +-----------+
//                                   |  Proposed |
//                                   +-----+-----+
//                                         | prepare >= quorum，投commit
//                                         v
//                                   +-----------+
//                                   |  Prepared |
//                                   +-----+-----+
//                                         | commit >= quorum，后台对账直到能接上链尾
//                                         v
//                                   +-----------+
//                                   | Committed |  ApplyBlock，BLOCK_TO_CORE，投round-change
//                                   +-----+-----+
//                                         | round-change >= quorum
//                                         v
//                                   +--------------+
//                                   | RoundChanged |  交易从交易池中清除
//                                   +--------------+
//
// ConsensusState - 共识状态机，receiveRoutine是唯一修改pool和链的协程
//	- Blockchain - 已提交的区块，负责proposer轮换和区块校验
//	- BlockExecutor - 打包区块、执行可以提交的区块
//		- Store - 数据持久化
//		- Mempool - 交易缓存池，区块迟迟不提交时把交易收回
//	- VotePool/RoundChangePool - 按区块hash收集投票
//	- PhaseTracker - 每个区块所处的阶段，只能前进
// Reactor - 把p2p Switch适配成Transport，和core之间的消息走CoreChannel
//
// proposer = (链上参考区块hash的第一个字节 + 当前分钟) mod n
// 节点之间的时钟偏差跨过分钟边界时，各节点算出的proposer会不同，区块被拒绝，交易靠重新分配收回
