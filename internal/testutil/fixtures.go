package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// Facts about the fixture portfolio written by WriteLoanFixtures.
const (
	FixtureLoans          = 12
	FixtureActiveLoans    = 9
	FixtureClients        = 10
	FixtureTotalArrears   = 5800
	FixtureTotalDisbursed = 37800
	FixtureDueToday       = 7
	FixtureTopManager     = "Carol" // by Total_Paid
)

type fixtureLoan struct {
	manager   string
	loanNo    string
	client    string
	name      string
	paid      int
	charged   int
	status    string
	arrears   int
	product   string
	issued    string
	disbursed int
	dueToday  int
}

var fixtureLoans = []fixtureLoan{
	{"Alice", "L001", "C01", "Jane Wanjiru", 5200, 6000, "Active", 800, "BIASHARA4W", "2025-01-06", 5000, 1500},
	{"Alice", "L002", "C02", "Peter Otieno", 3000, 3000, "Closed", 0, "INUKA4WKS", "2024-11-04", 2500, 0},
	{"Bob", "L003", "C03", "Mary Akinyi", 1200, 2400, "Active", 450, "INUKA6WKS", "2025-02-03", 2000, 400},
	{"Carol", "L004", "C04", "John Kamau", 7000, 7200, "Active", 0, "BIASHARA6W", "2025-01-20", 6000, 0},
	{"Alice", "L005", "C01", "Jane Wanjiru", 900, 4800, "Active", 1300, "BIASHARA4W", "2025-03-03", 4000, 1200},
	{"Bob", "L006", "C05", "Grace Njeri", 2500, 2500, "Closed", 0, "INUKA4WKS", "2024-10-07", 2000, 0},
	{"Bob", "L007", "C06", "David Mwangi", 1800, 3600, "Active", 600, "INUKA8WKS", "2025-02-17", 3000, 450},
	{"Carol", "L008", "C07", "Lucy Chebet", 4100, 4800, "Active", 250, "INUKA6WKS", "2025-01-13", 4000, 0},
	{"Alice", "L009", "C08", "Samuel Kiprop", 600, 1800, "Active", 900, "INUKA4WKS", "2025-03-10", 1500, 450},
	{"Carol", "L010", "C02", "Peter Otieno", 2200, 2200, "Closed", 0, "INUKA4WKS", "2024-12-02", 1800, 0},
	{"Bob", "L011", "C09", "Esther Muthoni", 3300, 6000, "Active", 1500, "BIASHARA6W", "2025-02-10", 5000, 1000},
	{"Alice", "L012", "C10", "Joseph Ouma", 1000, 1200, "Active", 0, "INUKA4WKS", "2025-03-17", 1000, 300},
}

var fixtureClients = [][]string{
	{"C01", "Jane Wanjiru", "F", "34"},
	{"C02", "Peter Otieno", "M", "41"},
	{"C03", "Mary Akinyi", "F", "29"},
	{"C04", "John Kamau", "M", "52"},
	{"C05", "Grace Njeri", "F", "38"},
	{"C06", "David Mwangi", "M", "27"},
	{"C07", "Lucy Chebet", "F", "45"},
	{"C08", "Samuel Kiprop", "M", "31"},
	{"C09", "Esther Muthoni", "F", "36"},
	{"C10", "Joseph Ouma", "M", "48"},
}

// WriteLoanFixtures writes processed_data.csv, loans.csv, ledger.csv and
// clients.csv into a fresh temporary directory and returns its path.
func WriteLoanFixtures(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()

	loanCounts := make(map[string]int)
	for _, l := range fixtureLoans {
		loanCounts[l.client]++
	}

	processed := [][]string{{
		"Managed_By", "Loan_No", "Client_Code", "Client_Name", "Total_Paid", "Total_Charged",
		"Status", "Arrears", "Loan_Product_Type", "Issued_Date", "Amount_Disbursed",
		"Installments", "Days_Since_Issued", "Is_Installment_Day", "Weeks_Passed",
		"Installments_Expected", "Installment_Amount", "Expected_Paid",
		"Expected_Before_Today", "Due_Today", "Mobile_Phone_No", "Client_Loan_Count", "Client_Type",
	}}
	loans := [][]string{{
		"Loan_No", "Loan_Product_Type", "Client_Code", "Issued_Date", "Approved_Amount",
		"Manager", "Recruiter", "Installments", "Expected_Date_of_Completion",
	}}
	ledger := [][]string{{
		"Posting_Date", "Loan_No", "Loan_Product_Type", "Interest_Paid", "Principle_Paid", "Total_Paid",
	}}

	for i, l := range fixtureLoans {
		installments := installmentsFor(l.product)
		days := 10 + 7*i
		weeks := days / 7
		expectedCount := min(weeks, installments)
		perInstallment := float64(l.charged) / float64(installments)
		expectedPaid := perInstallment * float64(expectedCount)
		clientType := "New"
		if loanCounts[l.client] > 1 {
			clientType = "Repeat"
		}
		processed = append(processed, []string{
			l.manager, l.loanNo, l.client, l.name, itoa(l.paid), itoa(l.charged),
			l.status, itoa(l.arrears), l.product, l.issued, itoa(l.disbursed),
			itoa(installments), itoa(days), strconv.FormatBool(l.dueToday > 0), itoa(weeks),
			itoa(expectedCount), fmt.Sprintf("%.2f", perInstallment), fmt.Sprintf("%.2f", expectedPaid),
			fmt.Sprintf("%.2f", expectedPaid-float64(l.dueToday)), itoa(l.dueToday),
			fmt.Sprintf("07000000%02d", i+1), itoa(loanCounts[l.client]), clientType,
		})

		issued, err := time.Parse("2006-01-02", l.issued)
		if err != nil {
			t.Fatalf("bad fixture date %q: %v", l.issued, err)
		}
		recruiter := "Rita"
		if i%2 == 1 {
			recruiter = "Sam"
		}
		loans = append(loans, []string{
			l.loanNo, l.product, l.client, l.issued, itoa(l.disbursed), l.manager, recruiter,
			itoa(installments), issued.AddDate(0, 0, 7*installments).Format("2006-01-02"),
		})

		interest := l.paid / 5
		ledger = append(ledger, []string{
			issued.AddDate(0, 0, 7).Format("2006-01-02"), l.loanNo, l.product,
			itoa(interest), itoa(l.paid - interest), itoa(l.paid),
		})
	}

	clients := append([][]string{{"Client_Code", "Name", "Gender", "Age"}}, fixtureClients...)

	writeCSV(t, filepath.Join(dir, "processed_data.csv"), processed)
	writeCSV(t, filepath.Join(dir, "loans.csv"), loans)
	writeCSV(t, filepath.Join(dir, "ledger.csv"), ledger)
	writeCSV(t, filepath.Join(dir, "clients.csv"), clients)
	return dir
}

func installmentsFor(product string) int {
	switch {
	case strings.HasSuffix(product, "8WKS"):
		return 8
	case strings.HasSuffix(product, "6W"), strings.HasSuffix(product, "6WKS"):
		return 6
	default:
		return 4
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func writeCSV(t testing.TB, path string, rows [][]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}
