package models

// DashboardMetrics is the payload of the dashboard endpoints. Money values are in paisa.
type DashboardMetrics struct {
	TotalCustomers  int64 `json:"totalCustomers"`
	ActiveCustomers int64 `json:"activeCustomers"`
	TotalShops      int64 `json:"totalShops"`

	TotalDebit              int64   `json:"totalDebit"`
	TotalCredit             int64   `json:"totalCredit"`
	NetBalance              int64   `json:"netBalance"`
	TotalTransactions       int64   `json:"totalTransactions"`
	AverageTransactionValue float64 `json:"averageTransactionValue"`

	TopCustomers          []TopCustomer         `json:"topCustomers"`
	EntryTypeDistribution EntryTypeDistribution `json:"entryTypeDistribution"`
	TransactionTrend      []DailyTrend          `json:"transactionTrend"`
	ShopDistribution      []ShopDistribution    `json:"shopDistribution"`

	AverageCustomerBalance float64       `json:"averageCustomerBalance"`
	OverdueBakiCount       int64         `json:"overdueBakiCount"`
	TotalOverdueBaki       int64         `json:"totalOverdueBaki"`
	PaymentHealth          PaymentHealth `json:"paymentHealthMetrics"`
}

type TopCustomer struct {
	CustomerID     int64  `json:"customerId"`
	Name           string `json:"name"`
	EntityName     string `json:"entityName"`
	ShopID         int64  `json:"shopId"`
	ShopName       string `json:"shopName"`
	CurrentBalance int64  `json:"currentBalance"`
}

type EntryTypeDistribution struct {
	BakiCount  int64 `json:"bakiCount"`
	PaidCount  int64 `json:"paidCount"`
	BakiAmount int64 `json:"bakiAmount"`
	PaidAmount int64 `json:"paidAmount"`
}

// DailyTrend is one calendar day of effective activity.
type DailyTrend struct {
	Date         string `json:"date"` // YYYY-MM-DD
	DebitAmount  int64  `json:"debitAmount"`
	DebitCount   int64  `json:"debitCount"`
	CreditAmount int64  `json:"creditAmount"`
	CreditCount  int64  `json:"creditCount"`
}

type ShopDistribution struct {
	ShopID        int64  `json:"shopId"`
	ShopName      string `json:"shopName"`
	CustomerCount int64  `json:"customerCount"`
	TotalBalance  int64  `json:"totalBalance"`
}

type PaymentHealth struct {
	CollectionRate                  float64 `json:"collectionRate"`
	TotalActiveCustomersWithBalance int64   `json:"totalActiveCustomersWithBalance"`
	LargestOutstandingBalance       int64   `json:"largestOutstandingBalance"`
	CustomersAboveAverageBalance    int64   `json:"customersAboveAverageBalance"`
}
