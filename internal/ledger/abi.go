package ledger

// ABI definitions for the two deployed contracts. The bytecode is
// deployed out of band; the service only ever talks to existing
// addresses taken from configuration.

const classManagerABI = `[
  {"type":"function","name":"createClass","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"},{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"addStudent","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"},{"name":"student","type":"address"}],"outputs":[]},
  {"type":"function","name":"approveAndAddStudent","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"},{"name":"student","type":"address"}],"outputs":[]},
  {"type":"function","name":"removeStudent","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"},{"name":"student","type":"address"}],"outputs":[]},
  {"type":"function","name":"closeClass","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"}],"outputs":[]},
  {"type":"function","name":"isStudentAllowed","stateMutability":"view","inputs":[{"name":"classId","type":"string"},{"name":"student","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getClassInfo","stateMutability":"view","inputs":[{"name":"classId","type":"string"}],"outputs":[{"name":"name","type":"string"},{"name":"teacher","type":"address"},{"name":"open","type":"bool"},{"name":"studentCount","type":"uint256"}]}
]`

const scoreManagerABI = `[
  {"type":"function","name":"registerClass","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"}],"outputs":[]},
  {"type":"function","name":"submitAssignment","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"},{"name":"assignmentId","type":"string"},{"name":"contentHash","type":"string"}],"outputs":[]},
  {"type":"function","name":"recordScore","stateMutability":"nonpayable","inputs":[{"name":"classId","type":"string"},{"name":"assignmentId","type":"string"},{"name":"student","type":"address"},{"name":"score","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"getScore","stateMutability":"view","inputs":[{"name":"classId","type":"string"},{"name":"assignmentId","type":"string"},{"name":"student","type":"address"}],"outputs":[{"name":"value","type":"uint8"},{"name":"recordedAt","type":"uint64"},{"name":"recordedBy","type":"address"},{"name":"exists","type":"bool"}]}
]`
