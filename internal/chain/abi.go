package chain

// Contract ABIs, limited to the surface this service consumes.

const stableVaultABI = `[
  {"type":"event","name":"Deposited","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"wethAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"Withdrawn","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"wethAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"Minted","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"stbAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"Repaid","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"stbAmount","type":"uint256","indexed":false},
    {"name":"feePaid","type":"uint256","indexed":false},
    {"name":"principalPaid","type":"uint256","indexed":false}]},
  {"type":"event","name":"Liquidated","anonymous":false,"inputs":[
    {"name":"owner","type":"address","indexed":true},
    {"name":"liquidator","type":"address","indexed":true},
    {"name":"repayAmount","type":"uint256","indexed":false},
    {"name":"seizedCollateral","type":"uint256","indexed":false},
    {"name":"badDebtDelta","type":"uint256","indexed":false}]},
  {"type":"function","name":"getVault","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}],"outputs":[
    {"name":"collateralAmount","type":"uint256"},
    {"name":"debtPrincipal","type":"uint256"},
    {"name":"accruedFee","type":"uint256"},
    {"name":"debtWithFee","type":"uint256"},
    {"name":"lastAccruedTimestamp","type":"uint256"},
    {"name":"lastRiskActionBlock","type":"uint256"}]},
  {"type":"function","name":"getCollateralRatioBps","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isLiquidatable","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getSystemBadDebt","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"protocolReserveStb","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"liquidate","stateMutability":"nonpayable","inputs":[
    {"name":"owner","type":"address"},
    {"name":"repayAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"deposit","stateMutability":"payable","inputs":[
    {"name":"ethAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
    {"name":"stbAmount","type":"uint256"}],"outputs":[]}
]`

const oracleHubABI = `[
  {"type":"function","name":"getPriceStatus","stateMutability":"view","inputs":[],"outputs":[
    {"name":"effectivePrice","type":"uint256"},
    {"name":"spotPrice","type":"uint256"},
    {"name":"twapPrice","type":"uint256"},
    {"name":"spotUpdatedAt","type":"uint256"},
    {"name":"twapUpdatedAt","type":"uint256"},
    {"name":"breakerTriggered","type":"bool"}]},
  {"type":"function","name":"canRiskActionProceed","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"bool"}]}
]`

const twapOracleABI = `[
  {"type":"function","name":"updateTwap","stateMutability":"nonpayable","inputs":[
    {"name":"priceE18","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getTwap","stateMutability":"view","inputs":[],"outputs":[
    {"name":"priceE18","type":"uint256"},
    {"name":"timestamp","type":"uint256"}]}
]`

const erc20ABI = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
    {"name":"spender","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},
    {"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`
