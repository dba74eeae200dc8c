// Copyright 2024 OpsPilot Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package synthesis

import (
	"strings"

	"github.com/your-org/opspilot/internal/trace"
)

// articlesForCategory returns the canned knowledge-base articles for a
// category. The relevance values are fixed literals per article.
func articlesForCategory(category string) []trace.KBArticle {
	switch category {
	case "password_reset":
		return []trace.KBArticle{
			{
				ID:    "KB-PW-001",
				Title: "Password Reset Instructions",
				Content: "To reset your password, please follow these steps:\n" +
					"1. Navigate to the company password portal at https://reset.company.com\n" +
					"2. Enter your username\n" +
					"3. Follow the verification steps\n" +
					"4. Create a new password following the security guidelines",
				Relevance: 0.95,
			},
			{
				ID:    "KB-PW-002",
				Title: "Account Lockout Resolution",
				Content: "If your account is locked due to multiple failed login attempts:\n" +
					"1. Wait 15 minutes for automatic lockout to expire\n" +
					"2. Contact the IT Help Desk for immediate assistance\n" +
					"3. Ensure you're using the correct username",
				Relevance: 0.85,
			},
		}

	case "application_login_issues":
		return []trace.KBArticle{
			{
				ID:    "KB-APP-001",
				Title: "Microsoft Application Login Issues",
				Content: "For Microsoft application login issues:\n" +
					"1. Clear browser cache and cookies\n" +
					"2. Restart the application\n" +
					"3. Check if you need to re-authenticate with your Microsoft account\n" +
					"4. Verify your internet connection is stable",
				Relevance: 0.92,
			},
		}

	case "printer_issues":
		return []trace.KBArticle{
			{
				ID:    "KB-PR-001",
				Title: "Printer Troubleshooting",
				Content: "To resolve common printer issues:\n" +
					"1. Check if the printer has paper and toner/ink\n" +
					"2. Ensure the printer is online and connected to the network\n" +
					"3. Restart the printer\n" +
					"4. Check for paper jams\n" +
					"5. Reinstall printer drivers if necessary",
				Relevance: 0.93,
			},
		}

	case "network_connectivity":
		return []trace.KBArticle{
			{
				ID:    "KB-NET-001",
				Title: "Network Connectivity Issues",
				Content: "If you're experiencing network connectivity problems:\n" +
					"1. Check if other devices can connect to the network\n" +
					"2. Restart your device and router/modem\n" +
					"3. Check network cables if applicable\n" +
					"4. Reset network settings\n" +
					"5. Contact IT support if issues persist",
				Relevance: 0.91,
			},
		}

	default:
		return []trace.KBArticle{
			{
				ID:    "KB-GEN-001",
				Title: "General IT Support",
				Content: "For general IT issues:\n" +
					"1. Restart the affected device or application\n" +
					"2. Check for recent updates or changes\n" +
					"3. Document any error messages\n" +
					"4. Contact the IT Help Desk with detailed information",
				Relevance: 0.80,
			},
		}
	}
}

// responseForCategory returns the canned troubleshooting script for a
// category. The unknown/low-confidence path branches on image context.
func responseForCategory(category, text string, hasImages bool) string {
	lower := strings.ToLower(text)

	switch category {
	case "password_reset":
		return "Based on your message, it sounds like you're having trouble with your password. " +
			"To reset your password, please follow these steps:\n\n" +
			"1. Go to the company password reset portal at https://reset.company.com\n" +
			"2. Enter your username (typically your email address)\n" +
			"3. You'll receive an email with a verification link\n" +
			"4. Click the link and follow the instructions to create a new password\n\n" +
			"If you're still experiencing issues after resetting your password, or if your account is locked, " +
			"please contact our IT Help Desk for further assistance."

	case "application_login_issues":
		if strings.Contains(lower, "teams") {
			return "I see you're having issues with Microsoft Teams login. This is often caused by session management problems. " +
				"Here's how to fix it:\n\n" +
				"1. Completely sign out of Teams\n" +
				"2. Clear your browser cache and cookies if you're using the web version\n" +
				"3. For the desktop app, check for any pending updates\n" +
				"4. Restart your computer\n" +
				"5. Sign back in with your credentials\n\n" +
				"If you're still experiencing issues, it might be related to your organization's session timeout policies " +
				"or authentication settings. Please contact your IT support team for assistance."
		}
		return "I understand you're having login issues with a Microsoft application. To resolve this:\n\n" +
			"1. Clear your browser cache and cookies\n" +
			"2. Ensure you're using the correct credentials\n" +
			"3. Check if your account requires multi-factor authentication\n" +
			"4. Try accessing the application from a different browser or device\n\n" +
			"If these steps don't resolve the issue, please contact the IT Help Desk for further assistance."

	case "printer_issues":
		return "I see you're experiencing printer-related issues. Here are some troubleshooting steps:\n\n" +
			"1. Check if the printer is powered on and connected to the network\n" +
			"2. Verify that there's paper in the tray and sufficient ink/toner\n" +
			"3. Look for any paper jams or hardware errors on the printer display\n" +
			"4. Restart both your computer and the printer\n" +
			"5. Try removing and reinstalling the printer drivers\n\n" +
			"If you're still having trouble after these steps, please provide the specific error message " +
			"or printer model for more targeted assistance."

	case "network_connectivity":
		return "Based on your message, you seem to be experiencing network connectivity issues. Here's how to troubleshoot:\n\n" +
			"1. Check if other devices can connect to the same network\n" +
			"2. Restart your device and router/modem\n" +
			"3. Try connecting to a different network if available\n" +
			"4. Reset your network settings\n" +
			"5. Check if your network adapter drivers need updating\n\n" +
			"If you're in the office, this might be a wider network issue. Please contact the IT department " +
			"if the problem persists after trying these steps."

	case "hardware_failure":
		return "I understand you're experiencing a hardware issue. Here are some troubleshooting steps:\n\n" +
			"1. Check all cable connections to ensure they're secure\n" +
			"2. Restart your device completely (power off, wait 30 seconds, power on)\n" +
			"3. Listen for unusual sounds like clicking or beeping\n" +
			"4. Check if the device is overheating\n" +
			"5. Try connecting external components to another device if possible\n\n" +
			"Hardware issues often require physical inspection. If these steps don't resolve your issue, " +
			"please contact IT support for further assistance."

	default:
		if hasImages {
			return "Thank you for providing details and images about your IT issue. " +
				"I've reviewed the information you've shared, but I need to analyze this further " +
				"to provide an accurate solution.\n\n" +
				"In the meantime, could you provide any error messages you're seeing or specific symptoms " +
				"of the problem? This would help me give you more targeted assistance."
		}
		return "I understand you're experiencing an IT issue. To help you effectively, " +
			"could you provide more specific details about the problem? Information like error messages, " +
			"what you were trying to do, and which systems are involved would help me diagnose the issue more accurately."
	}
}
