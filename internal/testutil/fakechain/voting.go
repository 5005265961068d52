package fakechain

import "github.com/ethereum/go-ethereum/common"

// VotingABI is the interface of contracts/Voting.sol as emitted by solc.
const VotingABI = `[
	{"inputs":[{"internalType":"bytes32[]","name":"candidateNames","type":"bytes32[]"}],"stateMutability":"nonpayable","type":"constructor"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"candidateList","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"bytes32","name":"candidate","type":"bytes32"}],"name":"totalVotesFor","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"bytes32","name":"candidate","type":"bytes32"}],"name":"validCandidate","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"bytes32","name":"candidate","type":"bytes32"}],"name":"voteForCandidate","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"name":"votesReceived","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// VotingBytecode stands in for the creation code. The fake chain only checks
// that deployments start with it.
var VotingBytecode = common.FromHex("0x608060405234801561001057600080fd5b50604051610400380380610400833981810160405281019061003291906101f5565b")

// Ganache-style deterministic accounts.
var (
	Account0 = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	Account1 = common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0")
	Account2 = common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b")
)
